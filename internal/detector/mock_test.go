package detector

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClientIsDeterministic(t *testing.T) {
	client := NewMockClient(512)

	a, err := client.Detect(context.Background(), []byte("frame-1"))
	require.NoError(t, err)
	b, err := client.Detect(context.Background(), []byte("frame-1"))
	require.NoError(t, err)

	require.Len(t, a, 1)
	assert.Equal(t, a[0].Embedding, b[0].Embedding)
	assert.Len(t, a[0].Embedding, 512)
}

func TestMockClientDistinctImagesDiffer(t *testing.T) {
	client := NewMockClient(512)

	a, err := client.Detect(context.Background(), []byte("frame-1"))
	require.NoError(t, err)
	b, err := client.Detect(context.Background(), []byte("frame-2"))
	require.NoError(t, err)

	assert.NotEqual(t, a[0].Embedding, b[0].Embedding)
}

func TestMockClientEmbeddingIsUnitLength(t *testing.T) {
	client := NewMockClient(128)

	faces, err := client.Detect(context.Background(), []byte("frame-1"))
	require.NoError(t, err)

	var sum float64
	for _, v := range faces[0].Embedding {
		sum += float64(v) * float64(v)
	}

	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-3)
}

func TestMockClientRejectsEmptyImage(t *testing.T) {
	client := NewMockClient(128)

	_, err := client.Detect(context.Background(), nil)
	assert.Error(t, err)
}
