package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/veriface/hub/internal/faceerrors"
	"github.com/veriface/hub/internal/models"
)

// pgForeignKeyViolation is the Postgres error code for foreign key violations.
const pgForeignKeyViolation = "23503"

// NewEmbedding pairs a vector with its metadata for insertion.
type NewEmbedding struct {
	Vector   []float32
	Metadata models.EmbeddingMetadata
}

// EmbeddingsRepository handles data access for the face_embeddings table.
type EmbeddingsRepository struct {
	db  *pgxpool.Pool
	dim int
}

// NewEmbeddingsRepository creates a new embeddings repository. dim is the
// fixed vector length; vectors of any other length are rejected before storage.
func NewEmbeddingsRepository(db *pgxpool.Pool, dim int) *EmbeddingsRepository {
	return &EmbeddingsRepository{db: db, dim: dim}
}

func (r *EmbeddingsRepository) validateDim(vector []float32) error {
	if len(vector) != r.dim {
		return faceerrors.NewValidationError("embedding",
			fmt.Sprintf("embedding has %d dimensions, expected %d", len(vector), r.dim))
	}

	return nil
}

func marshalBBox(bbox *models.BoundingBox) ([]byte, error) {
	if bbox == nil {
		return nil, nil
	}

	buf, err := json.Marshal(bbox)
	if err != nil {
		return nil, fmt.Errorf("marshal bbox: %w", err)
	}

	return buf, nil
}

func unmarshalBBox(buf []byte) (*models.BoundingBox, error) {
	if len(buf) == 0 {
		return nil, nil
	}

	var bbox models.BoundingBox
	if err := json.Unmarshal(buf, &bbox); err != nil {
		return nil, fmt.Errorf("unmarshal bbox: %w", err)
	}

	return &bbox, nil
}

func insertEmbedding(
	ctx context.Context, q querier, identityID uuid.UUID, emb NewEmbedding,
) (*models.FaceEmbedding, error) {
	bboxJSON, err := marshalBBox(emb.Metadata.BBox)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO face_embeddings (identity_id, embedding, image_ref, confidence, quality, bbox)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	record := models.FaceEmbedding{
		IdentityID: identityID,
		Embedding:  emb.Vector,
		ImageRef:   emb.Metadata.ImageRef,
		Confidence: emb.Metadata.Confidence,
		Quality:    emb.Metadata.Quality,
		BBox:       emb.Metadata.BBox,
	}

	err = q.QueryRow(ctx, query,
		identityID, pgvector.NewVector(emb.Vector), emb.Metadata.ImageRef,
		emb.Metadata.Confidence, emb.Metadata.Quality, bboxJSON,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, faceerrors.NewNotFoundError("identity", "identity not found")
		}

		return nil, fmt.Errorf("failed to insert face embedding: %w", err)
	}

	return &record, nil
}

// querier abstracts pgxpool.Pool and pgx.Tx for inserts that may run inside a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Insert stores one embedding for an existing identity.
// Fails with a ValidationError when the vector length mismatches the configured dimension.
func (r *EmbeddingsRepository) Insert(
	ctx context.Context, identityID uuid.UUID, emb NewEmbedding,
) (*models.FaceEmbedding, error) {
	if err := r.validateDim(emb.Vector); err != nil {
		return nil, err
	}

	return insertEmbedding(ctx, r.db, identityID, emb)
}

// CreateIdentityWithEmbeddings creates an identity and its embeddings in one
// transaction. Either the identity and every embedding are stored, or nothing
// is. Returns a ConflictError on a business key collision.
func (r *EmbeddingsRepository) CreateIdentityWithEmbeddings(
	ctx context.Context, req *models.CreateIdentityRequest, embs []NewEmbedding,
) (*models.Identity, []models.FaceEmbedding, error) {
	for _, emb := range embs {
		if err := r.validateDim(emb.Vector); err != nil {
			return nil, nil, err
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO identities (name, region, business_key, rank, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + identityColumns

	ident, err := scanIdentity(tx.QueryRow(ctx, query,
		req.Name, req.Region, req.BusinessKey, req.Rank, req.Description,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, nil, faceerrors.NewConflictError(
				fmt.Sprintf("business key %q is already registered", req.BusinessKey))
		}

		return nil, nil, fmt.Errorf("failed to create identity: %w", err)
	}

	records := make([]models.FaceEmbedding, 0, len(embs))

	for _, emb := range embs {
		record, err := insertEmbedding(ctx, tx, ident.ID, emb)
		if err != nil {
			return nil, nil, err
		}

		records = append(records, *record)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit transaction: %w", err)
	}

	return ident, records, nil
}

// AddEmbeddings stores multiple embeddings for an existing identity in one
// transaction: either all are stored or none.
func (r *EmbeddingsRepository) AddEmbeddings(
	ctx context.Context, identityID uuid.UUID, embs []NewEmbedding,
) ([]models.FaceEmbedding, error) {
	for _, emb := range embs {
		if err := r.validateDim(emb.Vector); err != nil {
			return nil, err
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records := make([]models.FaceEmbedding, 0, len(embs))

	for _, emb := range embs {
		record, err := insertEmbedding(ctx, tx, identityID, emb)
		if err != nil {
			return nil, err
		}

		records = append(records, *record)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return records, nil
}

// NearestByEmbedding returns the stored embeddings closest to queryVector
// within region, ordered ascending by cosine distance. Only rows with
// distance <= maxDistance are returned, and never rows from another region,
// even when globally closer. The limit applies after the region filter.
func (r *EmbeddingsRepository) NearestByEmbedding(
	ctx context.Context, queryVector []float32, region string, maxDistance float64, limit int,
) ([]models.Match, error) {
	if err := r.validateDim(queryVector); err != nil {
		return nil, err
	}

	queryVec := pgvector.NewVector(queryVector)

	rows, err := r.db.Query(ctx, `
		SELECT e.id, e.identity_id, e.image_ref, e.confidence, e.quality, e.bbox, e.created_at,
			i.id, i.name, i.region, i.business_key, i.rank, i.description, i.created_at, i.updated_at,
			(e.embedding <=> $1) AS distance
		FROM face_embeddings e
		INNER JOIN identities i ON i.id = e.identity_id
		WHERE i.region = $2 AND (e.embedding <=> $1) <= $3
		ORDER BY e.embedding <=> $1
		LIMIT $4`, queryVec, region, maxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("nearest face embeddings: %w", err)
	}

	defer rows.Close()

	var matches []models.Match

	for rows.Next() {
		var (
			m        models.Match
			bboxJSON []byte
		)

		err := rows.Scan(
			&m.Embedding.ID, &m.Embedding.IdentityID, &m.Embedding.ImageRef,
			&m.Embedding.Confidence, &m.Embedding.Quality, &bboxJSON, &m.Embedding.CreatedAt,
			&m.Identity.ID, &m.Identity.Name, &m.Identity.Region, &m.Identity.BusinessKey,
			&m.Identity.Rank, &m.Identity.Description, &m.Identity.CreatedAt, &m.Identity.UpdatedAt,
			&m.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}

		m.Embedding.BBox, err = unmarshalBBox(bboxJSON)
		if err != nil {
			return nil, err
		}

		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nearest: %w", err)
	}

	return matches, nil
}

// ScanCandidates returns every stored embedding within maxDistance of
// queryVector, joined with the owning identity, across all regions. The
// duplicate policy deliberately scans globally so one face cannot register
// under two identities in different regions. A decode failure on any row is
// reported with the embedding ID so the corrupt record can be remediated.
func (r *EmbeddingsRepository) ScanCandidates(
	ctx context.Context, queryVector []float32, maxDistance float64,
) ([]models.StoredFace, error) {
	if err := r.validateDim(queryVector); err != nil {
		return nil, err
	}

	queryVec := pgvector.NewVector(queryVector)

	rows, err := r.db.Query(ctx, `
		SELECT e.id, e.identity_id, i.name, i.region, e.embedding
		FROM face_embeddings e
		INNER JOIN identities i ON i.id = e.identity_id
		WHERE (e.embedding <=> $1) <= $2
		ORDER BY e.embedding <=> $1`, queryVec, maxDistance)
	if err != nil {
		return nil, fmt.Errorf("scan candidates: %w", err)
	}

	defer rows.Close()

	var faces []models.StoredFace

	for rows.Next() {
		var (
			face models.StoredFace
			vec  pgvector.Vector
		)

		if err := rows.Scan(&face.EmbeddingID, &face.IdentityID, &face.IdentityName, &face.Region, &vec); err != nil {
			// face.EmbeddingID is populated when the earlier columns decoded;
			// include it so operators can locate the unreadable record.
			return nil, fmt.Errorf("scan candidate row (embedding %s): %w", face.EmbeddingID, err)
		}

		face.Embedding = vec.Slice()
		faces = append(faces, face)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidates: %w", err)
	}

	return faces, nil
}

// ListByIdentity returns all embeddings owned by an identity, newest first.
func (r *EmbeddingsRepository) ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]models.FaceEmbedding, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, identity_id, image_ref, confidence, quality, bbox, created_at
		FROM face_embeddings
		WHERE identity_id = $1
		ORDER BY created_at DESC`, identityID)
	if err != nil {
		return nil, fmt.Errorf("list embeddings by identity: %w", err)
	}

	defer rows.Close()

	records := []models.FaceEmbedding{}

	for rows.Next() {
		var (
			record   models.FaceEmbedding
			bboxJSON []byte
		)

		err := rows.Scan(
			&record.ID, &record.IdentityID, &record.ImageRef,
			&record.Confidence, &record.Quality, &bboxJSON, &record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan face embedding: %w", err)
		}

		record.BBox, err = unmarshalBBox(bboxJSON)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}

	return records, nil
}

// CountByIdentity returns how many embeddings an identity owns.
func (r *EmbeddingsRepository) CountByIdentity(ctx context.Context, identityID uuid.UUID) (int64, error) {
	var count int64

	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM face_embeddings WHERE identity_id = $1`, identityID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count embeddings by identity: %w", err)
	}

	return count, nil
}
