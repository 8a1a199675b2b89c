package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) *SqlitePool {
	t.Helper()
	pool, err := NewSqlitePool(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestSqlitePoolPing(t *testing.T) {
	pool := newTestPool(t)
	assert.NoError(t, pool.Ping())
}

func TestBatchCreateAndValidate(t *testing.T) {
	pool := newTestPool(t)
	batch, err := pool.Borrow()
	require.NoError(t, err)

	id, err := batch.Create(1)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	assert.True(t, pool.ValidateBatchID(id))
}

func TestValidateBatchIDRejectsMalformed(t *testing.T) {
	pool := newTestPool(t)
	assert.False(t, pool.ValidateBatchID("not-a-number"))
	assert.False(t, pool.ValidateBatchID("-1"))
	assert.False(t, pool.ValidateBatchID("0"))
}

func TestValidateBatchIDRejectsUnknown(t *testing.T) {
	pool := newTestPool(t)
	assert.False(t, pool.ValidateBatchID("99999"))
}

func TestBatchAppendAndRemove(t *testing.T) {
	pool := newTestPool(t)
	batch, err := pool.Borrow()
	require.NoError(t, err)

	id, err := batch.Create(1)
	require.NoError(t, err)

	require.NoError(t, batch.Append(id, 3))
	require.NoError(t, batch.Remove(id))
	assert.False(t, pool.ValidateBatchID(id))
}

func TestBatchAppendMissingBatch(t *testing.T) {
	pool := newTestPool(t)
	batch, err := pool.Borrow()
	require.NoError(t, err)

	err = batch.Append("42", 1)
	assert.Equal(t, ErrBatchNotFound, err)
}

func TestPurgeRemovesOldBatches(t *testing.T) {
	pool := newTestPool(t)
	batch, err := pool.Borrow()
	require.NoError(t, err)

	id, err := batch.Create(1)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	purged, err := pool.Purge(0)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
	assert.False(t, pool.ValidateBatchID(id))
}
