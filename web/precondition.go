package web

import (
	"net/http"
	"strconv"
)

// PreConditionKind tags which of the two mutually-exclusive precondition
// headers (if either) was present (§4.7).
type PreConditionKind int

const (
	PreConditionNone PreConditionKind = iota
	PreConditionIfModifiedSince
	PreConditionIfUnmodifiedSince
)

// PreConditionHeader is C7's descriptor.
type PreConditionHeader struct {
	Kind      PreConditionKind
	Timestamp float64
}

// ExtractPreConditionHeader implements §4.7: at most one of
// X-If-Modified-Since / X-If-Unmodified-Since may be present; its value
// must parse as a non-negative sync timestamp.
func ExtractPreConditionHeader(h http.Header) (PreConditionHeader, *RequestProblem) {
	modified := h.Get("X-If-Modified-Since")
	unmodified := h.Get("X-If-Unmodified-Since")

	if modified != "" && unmodified != "" {
		return PreConditionHeader{}, ValidationProblem(LocationHeader, "X-If-Unmodified-Since",
			"request.validate.mod_header.conflict", "conflicts with X-If-Modified-Since")
	}

	var (
		value     string
		fieldName string
		kind      PreConditionKind
	)
	switch {
	case modified != "":
		value, fieldName, kind = modified, "X-If-Modified-Since", PreConditionIfModifiedSince
	case unmodified != "":
		value, fieldName, kind = unmodified, "X-If-Unmodified-Since", PreConditionIfUnmodifiedSince
	default:
		return PreConditionHeader{Kind: PreConditionNone}, nil
	}

	ts, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return PreConditionHeader{}, ValidationProblem(LocationHeader, fieldName,
			"request.validate.mod_header.invalid", "invalid timestamp")
	}
	if ts < 0 {
		return PreConditionHeader{}, ValidationProblem(LocationHeader, fieldName,
			"request.validate.mod_header.negative", "value is negative")
	}

	return PreConditionHeader{Kind: kind, Timestamp: ts}, nil
}
