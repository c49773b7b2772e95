package shared

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRun(t *testing.T) {
	ctx, id := NewRun(context.Background())

	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, RunID(ctx))

	_, other := NewRun(context.Background())
	assert.NotEqual(t, id, other)
}

func TestRunID_Missing(t *testing.T) {
	assert.Empty(t, RunID(context.Background()))
	assert.Equal(t, "fixed", RunID(WithRunID(context.Background(), "fixed")))
}
