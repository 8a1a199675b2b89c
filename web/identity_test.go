package web

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-services/syncstorage-admission/token"
)

func TestExtractIdentityMatches(t *testing.T) {
	id, problem := ExtractIdentity("/1.5/1/storage/col2", token.TokenPayload{Uid: 1})
	require.Nil(t, problem)
	assert.Equal(t, uint64(1), id.Uid)
}

func TestExtractIdentityConflict(t *testing.T) {
	_, problem := ExtractIdentity("/1.5/1/storage/col2", token.TokenPayload{Uid: 2})
	require.NotNil(t, problem)
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Equal(t, "request.validate.hawk.uid_conflict", problem.Metric)
}

func TestExtractIdentityInvalidUid(t *testing.T) {
	_, problem := ExtractIdentity("/1.5/notanumber/storage/col2", token.TokenPayload{Uid: 1})
	require.NotNil(t, problem)
	assert.Equal(t, "request.process.invalid_uid", problem.Metric)
}
