package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchRequest(body, contentType string) *http.Request {
	r := httptest.NewRequest("POST", "/1.5/1/storage/col2", strings.NewReader(body))
	r.Header.Set("Content-Type", contentType)
	return r
}

func TestExtractBatchBodiesJSONArray(t *testing.T) {
	body := `[{"id":"a","payload":"1"},{"id":"b","payload":"2"}]`
	bodies, problem := ExtractBatchBodies(batchRequest(body, "application/json"), testLimits())
	require.Nil(t, problem)
	assert.Len(t, bodies.Valid, 2)
	assert.Empty(t, bodies.Invalid)
}

func TestExtractBatchBodiesNewlines(t *testing.T) {
	body := "{\"id\":\"a\",\"payload\":\"1\"}\n{\"id\":\"b\",\"payload\":\"2\"}\n"
	bodies, problem := ExtractBatchBodies(batchRequest(body, "application/newlines"), testLimits())
	require.Nil(t, problem)
	assert.Len(t, bodies.Valid, 2)
}

func TestExtractBatchBodiesUnknownFieldDemotes(t *testing.T) {
	body := `[{"id":"a","bogus":1}]`
	bodies, problem := ExtractBatchBodies(batchRequest(body, "application/json"), testLimits())
	require.Nil(t, problem)
	assert.Empty(t, bodies.Valid)
	assert.Equal(t, "unknown field bogus", bodies.Invalid["a"])
}

func TestExtractBatchBodiesMissingIdFailsWholeRequest(t *testing.T) {
	body := `[{"payload":"1"}]`
	_, problem := ExtractBatchBodies(batchRequest(body, "application/json"), testLimits())
	require.NotNil(t, problem)
	assert.Equal(t, "request.store.missing_bso_id", problem.Metric)
}

func TestExtractBatchBodiesDuplicateIdFailsWholeRequest(t *testing.T) {
	body := `[{"id":"a"},{"id":"a"}]`
	_, problem := ExtractBatchBodies(batchRequest(body, "application/json"), testLimits())
	require.NotNil(t, problem)
	assert.Equal(t, "request.store.duplicate_bso_id", problem.Metric)
}

func TestExtractBatchBodiesOversizedRecordRetryBytes(t *testing.T) {
	limits := testLimits()
	limits.MaxRecordPayloadBytes = 2
	body := `[{"id":"a","payload":"toolong"}]`
	bodies, problem := ExtractBatchBodies(batchRequest(body, "application/json"), limits)
	require.Nil(t, problem)
	assert.Equal(t, "retry bytes", bodies.Invalid["a"])
}

func TestApplyRecordCountLimitTrimsTail(t *testing.T) {
	bodies := BatchBodies{
		Valid: []BatchRecord{{Id: "a"}, {Id: "b"}, {Id: "c"}},
		Invalid: map[string]string{},
	}
	limits := testLimits()
	limits.MaxPostRecords = 2

	ApplyRecordCountLimit(&bodies, limits)
	assert.Len(t, bodies.Valid, 2)
	assert.Equal(t, "retry bso", bodies.Invalid["c"])
}

func TestExtractBatchBodiesTTLOverflowDemotesRecord(t *testing.T) {
	body := `[{"id":"123","ttl":94608000},{"id":"456","ttl":999999999},{"id":"789","ttl":1000000000}]`
	bodies, problem := ExtractBatchBodies(batchRequest(body, "application/json"), testLimits())
	require.Nil(t, problem)
	assert.Len(t, bodies.Valid, 2)
	assert.Equal(t, "invalid bso", bodies.Invalid["789"])
	assert.NotContains(t, bodies.Invalid, "123")
	assert.NotContains(t, bodies.Invalid, "456")
}

func TestExtractBatchBodiesSortIndexOutOfRangeDemotesRecord(t *testing.T) {
	body := `[{"id":"a","sortindex":1000000000}]`
	bodies, problem := ExtractBatchBodies(batchRequest(body, "application/json"), testLimits())
	require.Nil(t, problem)
	assert.Empty(t, bodies.Valid)
	assert.Equal(t, "invalid bso", bodies.Invalid["a"])
}

func TestCheckKnownBadCryptoFailsWholeRequest(t *testing.T) {
	payload := `{"ciphertext":"x","IV":"AAAAAAAAAAAAAAAAAAAAAA=="}`
	bodies := BatchBodies{Valid: []BatchRecord{{Id: "keys", Payload: &payload}}}

	problem := CheckKnownBadCrypto(bodies, "crypto")
	require.NotNil(t, problem)
	assert.Equal(t, "request.process.known_bad_bso", problem.Metric)

	assert.Nil(t, CheckKnownBadCrypto(bodies, "col2"))
}
