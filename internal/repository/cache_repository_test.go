package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/univ-gestion/gestion-api/pkg/errors"
)

type recordingCacheMetrics struct {
	hits   int
	misses int
}

func (r *recordingCacheMetrics) RecordCacheOperation(hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func TestCacheGetWithoutClientIsMiss(t *testing.T) {
	metrics := &recordingCacheMetrics{}
	repo := NewCacheRepository(nil, nil, metrics)

	var dest struct{}
	err := repo.Get(context.Background(), "courses:list:key", &dest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.Equal(t, 1, metrics.misses)
	assert.Equal(t, 0, metrics.hits)
}

func TestCacheWritesWithoutClientAreNoOps(t *testing.T) {
	repo := NewCacheRepository(nil, nil, nil)

	require.NoError(t, repo.Set(context.Background(), "k", "v", 0))
	require.NoError(t, repo.DeleteByPattern(context.Background(), "courses:list:*"))
	require.NoError(t, repo.Close())
}
