package web

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-services/syncstorage-admission/hawkauth"
)

// Reproduced from hawkauth's own test fixture: a real token minted for
// master secret "Ted Koppel is a robot", uid 1, against
// GET /storage/1.5/1/storage/col2 at host localhost:5000. The signed
// path here doesn't start with /1.5/, so AuthHandler's identity check
// is not reached in these tests; ExtractIdentity is tested directly in
// identity_test.go.
const (
	fixtureID     = "eyJ1aWQiOiAxLCAibm9kZSI6ICJodHRwOi8vbG9jYWxob3N0OjUwMDAiLCAiZXhwaXJlcyI6IDE4ODQ5Njg0MzkuMCwgImZ4YV91aWQiOiAiMzE5Yjk4Zjk5NjFmZjFkYmRkMDczMTNjZDZiYTkyNWEiLCAiZnhhX2tpZCI6ICJkZTY5N2FkNjZkODQ1YjI4NzNjOWQ3ZTEzYjg5NzFhZiIsICJoYXNoZWRfZnhhX3VpZCI6ICIwZThkZjVkNDEzOThhMzg5OTEzYmQ4NDAyNDM1NjQ5NTE4YWY0NjQ5M2RhMWQ0YTQzN2E0NmRjMTc4NGM1MDFhIiwgImhhc2hlZF9kZXZpY2VfaWQiOiAiMmJjYjkyZjRkNDY5OGMzZDdiMDgzYTNjNjk4YTE2Y2NkNzhiYzJhOGQyMGE5NmU0YmIxMjhkZGNlYWY0ZTBiNiIsICJzYWx0IjogIjJiMzA3YiJ9lXaC5pIOenf7qL1AWlgKFvYH63nakyniTXP-7acS5cw="
	fixtureMac    = "UwDpC+DSrHCSTQSfMOWlueB6kM6gHb0Hsv8eU9ZcTVs="
	fixtureNonce  = "h1Ch4vo="
	fixtureTS     = int64(1569608439)
	fixtureMethod = "GET"
	fixturePath   = "/storage/1.5/1/storage/col2"
	fixtureHost   = "localhost"
	fixturePort   = 5000
	fixtureSecret = "Ted Koppel is a robot"
)

func dispatcherFixtureRequest(t *testing.T) *http.Request {
	t.Helper()
	u := fmt.Sprintf("http://%s:%d%s", fixtureHost, fixturePort, fixturePath)
	req := httptest.NewRequest(fixtureMethod, u, nil)
	req.Host = fmt.Sprintf("%s:%d", fixtureHost, fixturePort)
	req.Header.Set("Authorization", fmt.Sprintf(
		`Hawk id="%s", ts="%d", nonce="%s", mac="%s"`, fixtureID, fixtureTS, fixtureNonce, fixtureMac))
	return req
}

func TestAuthHandlerAdmitsValidToken(t *testing.T) {
	verifier := hawkauth.NewVerifier([]string{fixtureSecret})
	var sawToken bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		require.True(t, ok)
		sawToken = session.Token.Uid == 1
		w.WriteHeader(http.StatusOK)
	})

	handler := NewAuthHandler(inner, verifier)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, dispatcherFixtureRequest(t))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sawToken)
}

func TestAuthHandlerRejectsMissingAuthorization(t *testing.T) {
	verifier := hawkauth.NewVerifier([]string{fixtureSecret})
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("inner handler must not run without valid auth")
	})

	handler := NewAuthHandler(inner, verifier)
	req := httptest.NewRequest("GET", "/1.5/1/storage/col2", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.NotEqual(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hawk", rec.Header().Get("WWW-Authenticate"))
}

func TestAuthHandlerBypassesDockerflow(t *testing.T) {
	verifier := hawkauth.NewVerifier([]string{fixtureSecret})
	var ran bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
		w.WriteHeader(http.StatusOK)
	})

	handler := NewAuthHandler(inner, verifier)
	req := httptest.NewRequest("GET", "/__heartbeat__", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, ran)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExtractRequestDescriptorsStorageCollection(t *testing.T) {
	r := httptest.NewRequest("GET", "/1.5/1/storage/col2?full&limit=10&sort=newest", nil)
	descriptors, problem := ExtractRequestDescriptors(r)
	require.Nil(t, problem)
	require.NotNil(t, descriptors.Collection)
	assert.Equal(t, "col2", descriptors.Collection.Collection)
	assert.Nil(t, descriptors.Bso)
	assert.True(t, descriptors.Query.Full)
	require.NotNil(t, descriptors.Query.Limit)
	assert.Equal(t, uint32(10), *descriptors.Query.Limit)
}

func TestExtractRequestDescriptorsStorageBso(t *testing.T) {
	r := httptest.NewRequest("GET", "/1.5/1/storage/col2/abc", nil)
	descriptors, problem := ExtractRequestDescriptors(r)
	require.Nil(t, problem)
	require.NotNil(t, descriptors.Collection)
	require.NotNil(t, descriptors.Bso)
	assert.Equal(t, "abc", descriptors.Bso.Bso)
}

func TestExtractRequestDescriptorsInvalidCollection(t *testing.T) {
	r := httptest.NewRequest("GET", "/1.5/1/storage/"+url.QueryEscape("bad!name"), nil)
	_, problem := ExtractRequestDescriptors(r)
	require.NotNil(t, problem)
	assert.Equal(t, "request.process.invalid_collection", problem.Metric)
}

func TestExtractRequestDescriptorsConflictingPrecondition(t *testing.T) {
	r := httptest.NewRequest("GET", "/1.5/1/storage/col2", nil)
	r.Header.Set("X-If-Modified-Since", "1")
	r.Header.Set("X-If-Unmodified-Since", "2")
	_, problem := ExtractRequestDescriptors(r)
	require.NotNil(t, problem)
	assert.Equal(t, "request.validate.mod_header.conflict", problem.Metric)
}

func TestDescriptorHandlerBypassesDockerflow(t *testing.T) {
	var ran bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
	})
	req := httptest.NewRequest("GET", "/__lbheartbeat__?sort=nonsense", nil)
	rec := httptest.NewRecorder()
	DescriptorHandler(inner).ServeHTTP(rec, req)
	assert.True(t, ran)
}

func TestDescriptorHandlerStoresDescriptorsOnSession(t *testing.T) {
	var collection string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		require.True(t, ok)
		collection = session.Descriptors.Collection.Collection
	})
	req := httptest.NewRequest("GET", "/1.5/1/storage/col2", nil)
	rec := httptest.NewRecorder()
	DescriptorHandler(inner).ServeHTTP(rec, req)
	assert.Equal(t, "col2", collection)
}

type stubBatchValidator struct{ valid bool }

func (s stubBatchValidator) ValidateBatchID(string) bool { return s.valid }

func TestExtractBatchAdmissionPutSkipsBody(t *testing.T) {
	req := httptest.NewRequest("PUT", "/1.5/1/storage/col2/abc?batch=true", nil)
	gate, problem := ExtractBatchAdmission(req, "col2", testLimits(), nil)
	require.Nil(t, problem)
	require.NotNil(t, gate)
	assert.Nil(t, gate.ID)
}

func TestExtractBatchAdmissionPostAppliesCryptoCheck(t *testing.T) {
	payload := `{\"ciphertext\":\"x\",\"IV\":\"AAAAAAAAAAAAAAAAAAAAAA==\"}`
	body := `[{"id":"keys","payload":"` + payload + `"}]`
	req := batchRequest(body, "application/json")
	req.URL, _ = url.Parse("/1.5/1/storage/crypto?batch=true&commit=true")
	_, req = sessionFromRequest(req)

	_, problem := ExtractBatchAdmission(req, "crypto", testLimits(), nil)
	require.NotNil(t, problem)
	assert.Equal(t, "request.process.known_bad_bso", problem.Metric)
}

func TestExtractBatchAdmissionInvalidBatchId(t *testing.T) {
	req := httptest.NewRequest("PUT", "/1.5/1/storage/col2/abc?batch=notanid", nil)
	_, problem := ExtractBatchAdmission(req, "col2", testLimits(), stubBatchValidator{valid: false})
	require.NotNil(t, problem)
	assert.Equal(t, "request.validate.batch.invalid_id", problem.Metric)
}
