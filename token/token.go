// Package token implements HAWK token derivation and decoding for the Sync
// 1.5 storage service: the JSON payload embedded in a HAWK header's `id`
// field, HMAC-signed by the token-issuing service, and the HKDF expansion
// used to recover the per-request HAWK signing secret from it.
//
// copy/pasted here from the original [1] since it was not compatible with
// the python token server's spec which provided the expires timestamp as
// a float [2]
//
// [1] https://raw.githubusercontent.com/st3fan/moz-tokenserver/master/token/token_test.go
// [2] https://github.com/mozilla-services/tokenserver/blob/3b3d98359285dcbcae1706ded664a63fcb457639/tokenserver/views.py#L262
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrSignatureMismatch = errors.New("token: payload signature mismatch")
	ErrPayloadDecoding   = errors.New("token: payload did not decode as JSON")
	ErrTruncatedID       = errors.New("token: id too short to contain a payload and signature")
	ErrMissingPrefix     = errors.New("token: header does not start with \"Hawk \"")
	ErrExpired           = errors.New("token: payload has expired")
)

const (
	HKDF_INFO_SIGNING = "services.mozilla.com/tokenlib/v1/signing"
	HKDF_INFO_DERIVE  = "services.mozilla.com/tokenlib/v1/derive/"

	// HawkPrefix is the exact, case-sensitive literal every Authorization
	// header must begin with before the Hawk field list.
	HawkPrefix = "Hawk "
)

// TokenserverOrigin tags which tokenserver issued a payload. The only
// variant observed on the wire today is the zero value (unset); it is
// carried as an opaque string so new origins don't require a code change
// here.
type TokenserverOrigin string

// DefaultTokenserverOrigin is the zero-value origin tag used when a token
// predates (or simply omits) the field.
const DefaultTokenserverOrigin TokenserverOrigin = ""

// TokenPayload is the JSON payload carried (HMAC-signed) inside a HAWK
// header's `id` field. Field names and the `uid` JSON tag are wire-exact:
// they're produced by the Python tokenserver and must not be renamed.
type TokenPayload struct {
	Salt    string  `json:"salt"`
	Uid     uint64  `json:"uid"`
	Node    string  `json:"node"`
	Expires float64 `json:"expires"`

	FxaUid            string            `json:"fxa_uid,omitempty"`
	FxaKid            string            `json:"fxa_kid,omitempty"`
	HashedFxaUid      string            `json:"hashed_fxa_uid,omitempty"`
	HashedDeviceID    string            `json:"hashed_device_id,omitempty"`
	TokenserverOrigin TokenserverOrigin `json:"tokenserver_origin,omitempty"`
}

// UidString renders Uid the way path segments and session bookkeeping
// compare it: as a base-10 string.
func (p TokenPayload) UidString() string {
	return strconv.FormatUint(p.Uid, 10)
}

// Expired reports whether expiryFloor is at or past the payload's expires
// time, rounded to the nearest whole second. An expiryFloor of 0 disables
// the check (used for
// /info/collections, see the ExpiryFloor helper in package hawkauth).
func (p TokenPayload) Expired(expiryFloor int64) bool {
	if expiryFloor == 0 {
		return false
	}
	return int64(p.Expires+0.5) <= expiryFloor
}

type Token struct {
	Payload       TokenPayload
	Token         string
	DerivedSecret string
}

func (t *Token) Expired() bool {
	return float64(time.Now().Unix()) > t.Payload.Expires
}

func generateToken(secret []byte, payload TokenPayload) (string, error) {
	signatureSecret, err := calculateSignatureSecret(secret)
	if err != nil {
		return "", err
	}

	encodedPayload, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, signatureSecret)
	mac.Write(encodedPayload)
	payloadSignature := mac.Sum(nil)

	tokenSecret := append(encodedPayload, payloadSignature...)

	return base64.URLEncoding.EncodeToString(tokenSecret), nil
}

// generateDerivedSecret computes the per-token HAWK signing secret as the
// URL-safe base64 encoding of DeriveSecret's raw HKDF output; package
// hawkauth receives it through ParseToken's Token.DerivedSecret.
func generateDerivedSecret(secret []byte, salt string, encodedTokenSecret string) (string, error) {
	derived, err := DeriveSecret(secret, []byte(salt), HKDF_INFO_DERIVE+encodedTokenSecret)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(derived), nil
}

// DeriveSecret expands a 32-byte key via HKDF-SHA256 under ikm/salt/info.
// This is the C1 primitive: every per-token secret in this package, and
// every per-request HAWK signing secret computed by package hawkauth,
// bottoms out here.
func DeriveSecret(ikm, salt []byte, info string) ([]byte, error) {
	expander := hkdf.New(sha256.New, ikm, salt, []byte(info))
	out := make([]byte, sha256.Size)
	if _, err := io.ReadFull(expander, out); err != nil {
		return nil, errors.Wrap(err, "token: HKDF expansion failed")
	}
	return out, nil
}

func NewToken(secret []byte, payload TokenPayload) (Token, error) {
	tok := Token{Payload: payload}

	var err error
	if tok.Token, err = generateToken(secret, payload); err != nil {
		return Token{}, err
	}
	if tok.DerivedSecret, err = generateDerivedSecret(secret, payload.Salt, tok.Token); err != nil {
		return Token{}, err
	}
	return tok, nil
}

func splitToken(tokenSecret string) ([]byte, []byte, error) {
	decoded, err := base64.URLEncoding.DecodeString(tokenSecret)
	if err != nil {
		return nil, nil, err
	}
	if len(decoded) <= sha256.Size {
		return nil, nil, ErrTruncatedID
	}
	payloadLen := len(decoded) - sha256.Size
	return decoded[:payloadLen], decoded[payloadLen:], nil
}

func calculateSignatureSecret(secret []byte) ([]byte, error) {
	return DeriveSecret(secret, nil, HKDF_INFO_SIGNING)
}

// ParseToken decodes and MAC-verifies an opaque token string (the HAWK
// `id` field) under secret, returning the re-derived HAWK signing secret
// alongside the decoded payload.
func ParseToken(secret []byte, tokenSecret string) (Token, error) {
	encodedPayload, signature, err := splitToken(tokenSecret)
	if err != nil {
		return Token{}, err
	}

	signatureSecret, err := calculateSignatureSecret(secret)
	if err != nil {
		return Token{}, err
	}

	mac := hmac.New(sha256.New, signatureSecret)
	mac.Write(encodedPayload)
	expectedSignature := mac.Sum(nil)
	if !hmac.Equal(signature, expectedSignature) {
		return Token{}, ErrSignatureMismatch
	}

	tok := Token{Token: tokenSecret}
	if err = json.Unmarshal(encodedPayload, &tok.Payload); err != nil {
		return Token{}, errors.Wrap(ErrPayloadDecoding, err.Error())
	}

	if tok.DerivedSecret, err = generateDerivedSecret(secret, tok.Payload.Salt, tok.Token); err != nil {
		return Token{}, err
	}

	return tok, nil
}
