package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity represents a registered person.
type Identity struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Region      string    `json:"region"`
	BusinessKey string    `json:"business_key"`
	Rank        *string   `json:"rank,omitempty"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateIdentityRequest represents the request to create an identity.
// BusinessKey must be unique system-wide.
type CreateIdentityRequest struct {
	Name        string  `json:"name"`
	Region      string  `json:"region"`
	BusinessKey string  `json:"business_key"`
	Rank        *string `json:"rank,omitempty"`
	Description *string `json:"description,omitempty"`
}

// UpdateIdentityRequest represents the request to update an identity's profile.
// Only display fields can be updated; region and business key are immutable.
type UpdateIdentityRequest struct {
	Name        *string `json:"name,omitempty"`
	Rank        *string `json:"rank,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ListIdentitiesFilters represents filters for listing identities.
type ListIdentitiesFilters struct {
	Region *string `form:"region"`
	Name   *string `form:"name"`
	Limit  int     `form:"limit"`
	Offset int     `form:"offset"`
}

// ListIdentitiesResponse represents the response for listing identities.
type ListIdentitiesResponse struct {
	Data   []Identity `json:"data"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}
