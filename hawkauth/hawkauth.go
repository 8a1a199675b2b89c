// Package hawkauth implements C2 (HAWK token payload decode) and C3
// (HAWK request signature verification) for the Sync 1.5 storage
// service's request-admission path. It wraps go.mozilla.org/hawk for the
// request-MAC arithmetic and package token for the payload HKDF/HMAC
// machinery, translating both into the apierror taxonomy so callers never
// see the underlying library's error types.
package hawkauth

import (
	"bytes"
	"crypto/sha256"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"go.mozilla.org/hawk"

	"github.com/mozilla-services/syncstorage-admission/apierror"
	"github.com/mozilla-services/syncstorage-admission/token"
)

// Verifier recovers and MAC-verifies a HAWK token payload, then checks
// the request's own HAWK signature against the per-token derived secret.
type Verifier struct {
	// Secrets are the master HKDF keys, tried in order; a token service
	// mid-rotation can have more than one live at a time.
	Secrets []string
	Nonces  *NonceCache
}

// NewVerifier builds a Verifier with a freshly-seeded nonce replay cache.
func NewVerifier(secrets []string) *Verifier {
	return &Verifier{Secrets: secrets, Nonces: NewNonceCache()}
}

// ExpiryFloor returns the Unix timestamp a token payload's `expires` must
// be past for path to be admitted, or 0 to disable the check entirely.
// /info/collections is polled by clients well past when their token has
// nominally expired, purely to learn whether anything changed, so it is
// exempt from expiry admission (though not from signature verification).
func ExpiryFloor(path string, now int64) int64 {
	if strings.HasSuffix(path, "/info/collections") {
		return 0
	}
	return now
}

// Result is a successful Verify's output.
type Result struct {
	Payload token.TokenPayload
}

// Verify implements C2 (payload decode + MAC + expiry) and C3 (request
// MAC verify, including the optional payload-hash check). now is the
// Unix timestamp used to compute the expiry floor; passing it in rather
// than calling time.Now() keeps Verify deterministic under test.
func (v *Verifier) Verify(r *http.Request, now int64) (Result, *apierror.RequestProblem) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, token.HawkPrefix) {
		return Result{}, apierror.AuthProblem("missing_prefix", "Authorization header missing Hawk prefix")
	}

	auth, err := hawk.NewAuthFromRequest(r, nil, v.Nonces.NotFound)
	if err != nil {
		return Result{}, problemFromHawkError(err)
	}

	var (
		parsed token.Token
		tokErr error = token.ErrTruncatedID
	)
	for _, secret := range v.Secrets {
		parsed, tokErr = token.ParseToken([]byte(secret), auth.Credentials.ID)
		if tokErr == nil {
			break
		}
	}
	if tokErr != nil {
		return Result{}, problemFromTokenError(tokErr)
	}

	if parsed.Payload.Expired(ExpiryFloor(r.URL.Path, now)) {
		return Result{}, apierror.ExpiredProblem()
	}

	// auth.Valid() needs these set manually; NewAuthFromRequest has no
	// way to look them up itself since the credential key only exists
	// once the token id above has been decoded.
	auth.Credentials.Key = parsed.DerivedSecret
	auth.Credentials.Hash = sha256.New

	if err := auth.Valid(); err != nil {
		return Result{}, problemFromHawkError(err)
	}

	if auth.Hash != nil {
		if err := verifyPayloadHash(r, auth); err != nil {
			return Result{}, err
		}
	}

	return Result{Payload: parsed.Payload}, nil
}

// verifyPayloadHash checks the HAWK payload hash when the client sent
// one, buffering and replacing r.Body so downstream body extractors can
// still read it.
func verifyPayloadHash(r *http.Request, auth *hawk.Auth) *apierror.RequestProblem {
	if r.Header.Get("Content-Type") == "" {
		return apierror.ValidationProblem(apierror.LocationHeader, "Content-Type",
			"request.validate.hawk.missing_content_type", "Content-Type required")
	}

	content, err := io.ReadAll(r.Body)
	if err != nil {
		return apierror.ValidationProblem(apierror.LocationBody, "body",
			"request.validate.hawk.body_read", "could not read request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(content))

	pHash := auth.PayloadHash(r.Header.Get("Content-Type"))
	pHash.Write(content)
	if !auth.ValidHash(pHash) {
		return apierror.AuthProblem("bad_payload_hash", "payload hash invalid")
	}
	return nil
}

func problemFromHawkError(err error) *apierror.RequestProblem {
	switch e := err.(type) {
	case hawk.AuthFormatError:
		return apierror.AuthProblem("malformed", "malformed hawk header field "+e.Field)
	case hawk.AuthError:
		switch e {
		case hawk.ErrReplay:
			return apierror.ReplayProblem()
		case hawk.ErrNoAuth:
			return apierror.AuthProblem("missing", "missing Authorization header")
		case hawk.ErrTimestampSkew:
			return apierror.AuthProblem("timestamp_skew", "timestamp skew too large")
		default:
			return apierror.AuthProblem("invalid", e.Error())
		}
	default:
		return apierror.AuthProblem("unknown", err.Error())
	}
}

func problemFromTokenError(err error) *apierror.RequestProblem {
	switch errors.Cause(err) {
	case token.ErrTruncatedID:
		return apierror.AuthProblem("truncated_id", "token id too short to contain a payload and signature")
	case token.ErrSignatureMismatch:
		return apierror.AuthProblem("bad_signature", "token payload signature mismatch")
	case token.ErrPayloadDecoding:
		return apierror.AuthProblem("bad_json", "token payload did not decode as JSON")
	default:
		return apierror.AuthProblem("invalid_token", err.Error())
	}
}
