package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-services/syncstorage-admission/config"
)

func testLimits() config.ServerLimits {
	return config.ServerLimits{
		MaxRequestBytes:       2097152,
		MaxPostRecords:        100,
		MaxPostBytes:          2097152,
		MaxTotalRecords:       1000,
		MaxTotalBytes:         20971520,
		MaxBatchTTL:           7200,
		MaxRecordPayloadBytes: 2097152,
	}
}

func bsoRequest(body string) *http.Request {
	r := httptest.NewRequest("PUT", "/1.5/1/storage/col2/abc", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestExtractBsoBodyValid(t *testing.T) {
	body, problem := ExtractBsoBody(bsoRequest(`{"payload":"hello","sortindex":1}`), "col2", testLimits())
	require.Nil(t, problem)
	require.NotNil(t, body.Payload)
	assert.Equal(t, "hello", *body.Payload)
}

func TestExtractBsoBodyUnknownField(t *testing.T) {
	_, problem := ExtractBsoBody(bsoRequest(`{"bogus":1}`), "col2", testLimits())
	require.NotNil(t, problem)
	assert.Equal(t, "request.validate.bso.unknown_field", problem.Metric)
}

func TestExtractBsoBodyIgnoresModified(t *testing.T) {
	_, problem := ExtractBsoBody(bsoRequest(`{"payload":"x","modified":123.45}`), "col2", testLimits())
	require.Nil(t, problem)
}

func TestExtractBsoBodyKnownBadCrypto(t *testing.T) {
	payload := `{\"ciphertext\":\"x\",\"IV\":\"AAAAAAAAAAAAAAAAAAAAAA==\"}`
	body := `{"payload":"` + payload + `"}`
	_, problem := ExtractBsoBody(bsoRequest(body), "crypto", testLimits())
	require.NotNil(t, problem)
	assert.Equal(t, "request.validate.bso.known_bad", problem.Metric)
	assert.Equal(t, WeaveInvalidWBO, problem.WeaveCode)
}

func TestExtractBsoBodyPayloadTooLarge(t *testing.T) {
	limits := testLimits()
	limits.MaxRecordPayloadBytes = 4
	_, problem := ExtractBsoBody(bsoRequest(`{"payload":"toolong"}`), "col2", limits)
	require.NotNil(t, problem)
	assert.Equal(t, "request.validate.bso.payload_too_large", problem.Metric)
}

func TestExtractBsoBodyInvalidId(t *testing.T) {
	_, problem := ExtractBsoBody(bsoRequest(`{"id":"has a space"}`), "col2", testLimits())
	require.NotNil(t, problem)
	assert.Equal(t, "request.validate.bso.invalid_id", problem.Metric)
}

func TestExtractBsoBodyTTLOverflow(t *testing.T) {
	_, problem := ExtractBsoBody(bsoRequest(`{"ttl":1000000000}`), "col2", testLimits())
	require.NotNil(t, problem)
	assert.Equal(t, "request.validate.bso.invalid_ttl", problem.Metric)
}

func TestExtractBsoBodyTTLWithinBounds(t *testing.T) {
	_, problem := ExtractBsoBody(bsoRequest(`{"ttl":999999999}`), "col2", testLimits())
	require.Nil(t, problem)
}

func TestExtractBsoBodySortIndexOutOfRange(t *testing.T) {
	_, problem := ExtractBsoBody(bsoRequest(`{"sortindex":1000000000}`), "col2", testLimits())
	require.NotNil(t, problem)
	assert.Equal(t, "request.validate.bso.invalid_sortindex", problem.Metric)

	_, problem = ExtractBsoBody(bsoRequest(`{"sortindex":-1000000000}`), "col2", testLimits())
	require.NotNil(t, problem)
	assert.Equal(t, "request.validate.bso.invalid_sortindex", problem.Metric)
}
