package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/mozilla-services/syncstorage-admission/apierror"
	"github.com/mozilla-services/syncstorage-admission/config"
)

// BatchRecord is one input BSO in a batch upload, already bucketed as
// admissible.
type BatchRecord struct {
	Id        string
	Payload   *string
	TTL       *int
	SortIndex *int
}

// BatchBodies is C9's descriptor: the per-record fold over a batch
// upload's body, separating what will be stored from what the client
// should retry, without ever failing the whole request for a single bad
// record (duplicate/missing ids and malformed JSON remain whole-request
// failures, same as the original implementation).
type BatchBodies struct {
	Valid   []BatchRecord
	Invalid map[string]string
}

var batchRecordAllowedFields = map[string]bool{
	"id":         true,
	"sortindex":  true,
	"payload":    true,
	"ttl":        true,
	"modified":   true,
	"collection": true,
}

// ExtractBatchBodies implements §4.9: application/newlines is one JSON
// object per line, otherwise the whole body must be a single JSON array.
// Every element must deserialize as a JSON object and carry a unique,
// non-empty `id`; anything else about a record that's merely wrong
// (unknown field, bad id shape, oversized payload) demotes it to invalid
// rather than failing the request.
func ExtractBatchBodies(r *http.Request, limits config.ServerLimits) (BatchBodies, *RequestProblem) {
	if !ContentTypeOk(r) {
		return BatchBodies{}, apierror.ValidationProblem(apierror.LocationHeader, "Content-Type",
			"request.error.invalid_content_type", "unsupported content type")
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, int64(limits.MaxRequestBytes)+1))
	if err != nil {
		return BatchBodies{}, apierror.ValidationProblem(apierror.LocationBody, "bsos",
			"request.validate.invalid_body_json", "could not read request body")
	}
	if len(raw) > limits.MaxRequestBytes {
		return BatchBodies{}, apierror.PayloadTooLargeProblem("bsos")
	}

	newlines := getMediaType(r.Header.Get("Content-Type")) == "application/newlines"

	var elements []json.RawMessage
	if newlines {
		for _, line := range scanNewlineBody(raw) {
			var v json.RawMessage
			if err := json.Unmarshal([]byte(line), &v); err != nil {
				return BatchBodies{}, invalidBodyJSONProblem()
			}
			elements = append(elements, v)
		}
	} else if err := json.Unmarshal(raw, &elements); err != nil {
		return BatchBodies{}, invalidBodyJSONProblem()
	}

	bodies := BatchBodies{Invalid: map[string]string{}}
	seenIds := map[string]bool{}
	totalPayloadSize := 0

	for _, element := range elements {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(element, &obj); err != nil {
			return BatchBodies{}, invalidBodyJSONProblem()
		}

		idRaw, ok := obj["id"]
		if !ok {
			return BatchBodies{}, apierror.ValidationProblem(apierror.LocationBody, "bsos",
				"request.store.missing_bso_id", "input BSO has no ID")
		}
		var id string
		if err := json.Unmarshal(idRaw, &id); err != nil || id == "" {
			return BatchBodies{}, apierror.ValidationProblem(apierror.LocationBody, "bsos",
				"request.store.missing_bso_id", "input BSO has no ID")
		}
		if seenIds[id] {
			return BatchBodies{}, apierror.ValidationProblem(apierror.LocationBody, "bsos",
				"request.store.duplicate_bso_id", "input BSO has duplicate ID")
		}
		seenIds[id] = true

		record, reason := parseBatchRecord(id, obj)
		if reason != "" {
			bodies.Invalid[id] = reason
			continue
		}

		payloadSize := 0
		if record.Payload != nil {
			payloadSize = len(*record.Payload)
		}
		totalPayloadSize += payloadSize

		if payloadSize > limits.MaxRecordPayloadBytes || totalPayloadSize > limits.MaxPostBytes {
			bodies.Invalid[id] = "retry bytes"
			continue
		}

		bodies.Valid = append(bodies.Valid, record)
	}

	return bodies, nil
}

// parseBatchRecord validates one already-id-checked record, returning a
// non-empty reason string instead of an error when the record itself
// (not the whole request) is at fault.
func parseBatchRecord(id string, obj map[string]json.RawMessage) (BatchRecord, string) {
	for k := range obj {
		if !batchRecordAllowedFields[k] {
			return BatchRecord{}, "unknown field " + k
		}
	}

	if !BSOIDOk(id) {
		return BatchRecord{}, "invalid bso"
	}

	record := BatchRecord{Id: id}

	if raw, ok := obj["payload"]; ok {
		var payload string
		if err := json.Unmarshal(raw, &payload); err != nil {
			return BatchRecord{}, "invalid bso"
		}
		record.Payload = &payload
	}

	if raw, ok := obj["ttl"]; ok {
		var ttl int
		if err := json.Unmarshal(raw, &ttl); err != nil || ttl < 0 || ttl > maxTTL {
			return BatchRecord{}, "invalid bso"
		}
		record.TTL = &ttl
	}

	if raw, ok := obj["sortindex"]; ok {
		var sortIndex int
		if err := json.Unmarshal(raw, &sortIndex); err != nil || sortIndex < minSortIndex || sortIndex > maxSortIndex {
			return BatchRecord{}, "invalid bso"
		}
		record.SortIndex = &sortIndex
	}

	return record, ""
}

// ApplyRecordCountLimit implements the "trim the excess BSOs" step of
// §4.9/§4.10: valid records beyond limits.MaxPostRecords move to invalid
// with reason "retry bso", taken from the tail so earlier records in the
// client's submission order are preferred.
func ApplyRecordCountLimit(bodies *BatchBodies, limits config.ServerLimits) {
	overage := len(bodies.Valid) - limits.MaxPostRecords
	for i := 0; i < overage; i++ {
		last := bodies.Valid[len(bodies.Valid)-1]
		bodies.Valid = bodies.Valid[:len(bodies.Valid)-1]
		bodies.Invalid[last.Id] = "retry bso"
	}
}

// CheckKnownBadCrypto implements §4.9's whole-request known-bad-crypto
// rejection for the `crypto` collection: like the single-BSO path (which
// rejects the PUT with KnownBadBsoProblem), a batch upload fails the whole
// request rather than demoting the record to invalid, matching the
// original implementation's CollectionPostRequest extractor.
func CheckKnownBadCrypto(bodies BatchBodies, collection string) *RequestProblem {
	if collection != "crypto" {
		return nil
	}
	for _, record := range bodies.Valid {
		if record.Payload != nil && knownBadCryptoPayload.MatchString(*record.Payload) {
			return apierror.ValidationProblem(apierror.LocationBody, "bsos",
				"request.process.known_bad_bso", "known-bad BSO payload")
		}
	}
	return nil
}

func invalidBodyJSONProblem() *RequestProblem {
	return apierror.ValidationProblem(apierror.LocationBody, "bsos",
		"request.validate.invalid_body_json", "invalid JSON in request body")
}
