package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/campuschain/feedback-api/pkg/errors"
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

func TestCacheGetWithoutRedisRecordsMiss(t *testing.T) {
	recorder := &recordingCacheMetrics{}
	repo := NewCacheRepository(nil, nil).WithMetrics(recorder)

	var dest map[string]string
	err := repo.Get(context.Background(), "courses:list", &dest)

	require.ErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.Equal(t, 1, recorder.misses)
	assert.Zero(t, recorder.hits)
}

func TestCacheWithoutRedisWritesAreNoOps(t *testing.T) {
	repo := NewCacheRepository(nil, nil)

	require.NoError(t, repo.Set(context.Background(), "courses:list", "payload", 0))
	require.NoError(t, repo.DeleteByPattern(context.Background(), "courses:*"))
	require.NoError(t, repo.Close())
}
