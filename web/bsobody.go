package web

import (
	"encoding/json"
	"io"
	"net/http"
	"regexp"

	"github.com/mozilla-services/syncstorage-admission/apierror"
	"github.com/mozilla-services/syncstorage-admission/config"
)

// knownBadCryptoPayload matches the IV the original client library shipped
// with a fixed, all-zero value for a stretch of time -- any record in the
// `crypto` collection carrying it is rejected outright rather than stored,
// since it is cryptographically worthless and its presence usually means
// a client is still running the broken code.
var knownBadCryptoPayload = regexp.MustCompile(`"IV":\s*"AAAAAAAAAAAAAAAAAAAAAA=="`)

// maxTTL/minSortIndex/maxSortIndex are §3's BsoBody bounds: ttl is an
// unsigned 32-bit value capped at 999_999_999, sortindex a signed
// 32-bit value in [-999_999_999, 999_999_999].
const (
	maxTTL       = 999_999_999
	minSortIndex = -999_999_999
	maxSortIndex = 999_999_999
)

// BsoBody is C8's descriptor: a single decoded, admitted BSO body.
type BsoBody struct {
	Id        *string
	Payload   *string
	TTL       *int
	SortIndex *int
}

// bsoBodyAllowedFields is the set of top-level keys accepted on the wire;
// ExtractBsoBody rejects any other key as an unknown field.
var bsoBodyAllowedFields = map[string]bool{
	"id":        true,
	"payload":   true,
	"ttl":       true,
	"sortindex": true,
	"modified":  true, // accepted and ignored, see §4.8
	"collection": true,
}

// ExtractBsoBody implements §4.8: content-type gating, strict
// unknown-field rejection, a payload size cap, and the known-bad crypto
// rejection when collection == "crypto".
func ExtractBsoBody(r *http.Request, collection string, limits config.ServerLimits) (BsoBody, *RequestProblem) {
	if ok, problem := bsoContentTypeOk(r); !ok {
		return BsoBody{}, problem
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, int64(limits.MaxRequestBytes)+1))
	if err != nil {
		return BsoBody{}, apierror.ValidationProblem(apierror.LocationBody, "body",
			"request.validate.bso.body_read", "could not read request body")
	}
	if len(raw) > limits.MaxRequestBytes {
		return BsoBody{}, apierror.PayloadTooLargeProblem("body")
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return BsoBody{}, apierror.ValidationProblem(apierror.LocationBody, "-",
			"request.validate.bso.invalid_json", "could not parse body as a JSON object")
	}

	for k := range keys {
		if !bsoBodyAllowedFields[k] {
			return BsoBody{}, apierror.ValidationProblem(apierror.LocationBody, k,
				"request.validate.bso.unknown_field", "unknown field "+k)
		}
	}

	var body BsoBody

	if raw, ok := keys["id"]; ok {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return BsoBody{}, apierror.ValidationProblem(apierror.LocationBody, "id",
				"request.validate.bso.invalid_field", "invalid format for field id")
		}
		if !BSOIDOk(id) {
			return BsoBody{}, apierror.ValidationProblem(apierror.LocationBody, "id",
				"request.validate.bso.invalid_id", "id does not match the bso id grammar")
		}
		body.Id = &id
	}

	if raw, ok := keys["payload"]; ok {
		var payload string
		if err := json.Unmarshal(raw, &payload); err != nil {
			return BsoBody{}, apierror.ValidationProblem(apierror.LocationBody, "payload",
				"request.validate.bso.invalid_field", "invalid format for field payload")
		}
		if len(payload) > limits.MaxRecordPayloadBytes {
			return BsoBody{}, apierror.PayloadTooLargeProblem("payload")
		}
		if collection == "crypto" && knownBadCryptoPayload.MatchString(payload) {
			return BsoBody{}, apierror.KnownBadBsoProblem()
		}
		body.Payload = &payload
	}

	if raw, ok := keys["ttl"]; ok {
		var ttl int
		if err := json.Unmarshal(raw, &ttl); err != nil {
			return BsoBody{}, apierror.ValidationProblem(apierror.LocationBody, "ttl",
				"request.validate.bso.invalid_field", "invalid format for field ttl")
		}
		if ttl < 0 || ttl > maxTTL {
			return BsoBody{}, apierror.ValidationProblem(apierror.LocationBody, "ttl",
				"request.validate.bso.invalid_ttl", "ttl out of range")
		}
		body.TTL = &ttl
	}

	if raw, ok := keys["sortindex"]; ok {
		var sortIndex int
		if err := json.Unmarshal(raw, &sortIndex); err != nil {
			return BsoBody{}, apierror.ValidationProblem(apierror.LocationBody, "sortindex",
				"request.validate.bso.invalid_field", "invalid format for field sortindex")
		}
		if sortIndex < minSortIndex || sortIndex > maxSortIndex {
			return BsoBody{}, apierror.ValidationProblem(apierror.LocationBody, "sortindex",
				"request.validate.bso.invalid_sortindex", "sortindex out of range")
		}
		body.SortIndex = &sortIndex
	}

	return body, nil
}

// bsoContentTypeOk enforces the same three content types the batch path
// accepts (application/json, text/plain, application/newlines), since a
// single-BSO PUT is otherwise governed by the same wire contract.
func bsoContentTypeOk(r *http.Request) (bool, *RequestProblem) {
	if ContentTypeOk(r) {
		return true, nil
	}
	return false, apierror.ValidationProblem(apierror.LocationHeader, "Content-Type",
		"request.validate.bso.invalid_content_type", "unsupported content type")
}
