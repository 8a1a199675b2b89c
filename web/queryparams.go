package web

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// BATCH_MAX_IDS caps the query-string `ids` list (§4.6). A batch body's
// record count is capped separately by config.ServerLimits.MaxPostRecords,
// whose default (100) has the same value.
const BATCH_MAX_IDS = 100

// Sorting is the `sort` query parameter's enum (§4.6).
type Sorting string

const (
	SortNone   Sorting = "none"
	SortNewest Sorting = "newest"
	SortOldest Sorting = "oldest"
	SortIndex  Sorting = "index"
)

func parseSorting(s string) (Sorting, *RequestProblem) {
	switch Sorting(s) {
	case "", SortNone:
		return SortNone, nil
	case SortNewest, SortOldest, SortIndex:
		return Sorting(s), nil
	default:
		return "", ValidationProblem(LocationQueryString, "sort",
			"request.validate.querystring.invalid_sort", "invalid sort")
	}
}

// Offset is the `offset` query parameter (§4.6/§9). The colon-separated
// `timestamp:offset` form found in the original implementation is
// commented out there and intentionally not implemented here: Offset is
// always a bare, base-10 uint64 with Timestamp left unset.
type Offset struct {
	Timestamp *float64
	Value     uint64
}

// String renders o the way it round-trips through ParseOffset: the bare
// decimal offset, timestamp omitted.
func (o Offset) String() string {
	return strconv.FormatUint(o.Value, 10)
}

// ParseOffset parses the u64-only Offset wire form (§9).
func ParseOffset(s string) (Offset, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return Offset{}, err
	}
	return Offset{Value: v}, nil
}

// BsoQueryParams is C6's descriptor.
type BsoQueryParams struct {
	Newer *float64
	Older *float64
	Sort  Sorting
	Limit *uint32
	Offset *Offset
	Ids    []string
	Full   bool
}

// ExtractQueryParams implements §4.6 over an already-parsed query string.
func ExtractQueryParams(values url.Values) (BsoQueryParams, *RequestProblem) {
	params := BsoQueryParams{Sort: SortNone}

	if v := values.Get("newer"); v != "" {
		ts, err := parseNonNegativeTimestamp(v)
		if err != nil {
			return BsoQueryParams{}, ValidationProblem(LocationQueryString, "newer",
				"request.validate.querystring.invalid_newer", err.Error())
		}
		params.Newer = &ts
	}

	if v := values.Get("older"); v != "" {
		ts, err := parseNonNegativeTimestamp(v)
		if err != nil {
			return BsoQueryParams{}, ValidationProblem(LocationQueryString, "older",
				"request.validate.querystring.invalid_older", err.Error())
		}
		params.Older = &ts
	}

	sort, problem := parseSorting(values.Get("sort"))
	if problem != nil {
		return BsoQueryParams{}, problem
	}
	params.Sort = sort

	if v := values.Get("limit"); v != "" {
		limit, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return BsoQueryParams{}, ValidationProblem(LocationQueryString, "limit",
				"request.validate.querystring.invalid_limit", "invalid limit")
		}
		limit32 := uint32(limit)
		params.Limit = &limit32
	}

	if v := values.Get("offset"); v != "" {
		offset, err := ParseOffset(v)
		if err != nil {
			return BsoQueryParams{}, ValidationProblem(LocationQueryString, "offset",
				"request.validate.querystring.invalid_offset", "invalid offset")
		}
		params.Offset = &offset
	}

	ids, problem := parseCommaSeparatedIds(values.Get("ids"))
	if problem != nil {
		return BsoQueryParams{}, problem
	}
	params.Ids = ids

	_, params.Full = values["full"]

	return params, nil
}

func parseNonNegativeTimestamp(s string) (float64, error) {
	ts, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if ts < 0 {
		return 0, errNegativeTimestamp
	}
	return ts, nil
}

var errNegativeTimestamp = errors.New("timestamp must not be negative")

// parseCommaSeparatedIds implements §4.6's `ids` parsing: comma-split,
// whitespace-trimmed, empty fragments dropped, capped at BATCH_MAX_IDS,
// each entry re-validated against the BSO id grammar.
func parseCommaSeparatedIds(raw string) ([]string, *RequestProblem) {
	if raw == "" {
		return nil, nil
	}

	var ids []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ids = append(ids, part)
	}

	if len(ids) > BATCH_MAX_IDS {
		return nil, ValidationProblem(LocationQueryString, "ids",
			"request.validate.querystring.too_many_ids", "too many ids provided")
	}

	for _, id := range ids {
		if !BSOIDOk(id) {
			return nil, ValidationProblem(LocationQueryString, "ids",
				"request.validate.querystring.invalid_id", "invalid id in ids")
		}
	}

	return ids, nil
}
