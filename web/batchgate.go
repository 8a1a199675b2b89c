package web

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/mozilla-services/syncstorage-admission/apierror"
	"github.com/mozilla-services/syncstorage-admission/config"
)

// trueRegex is how the `commit` query parameter and a bare `batch=true`
// sentinel are both recognized, case-insensitively (§9's open question).
var trueRegex = regexp.MustCompile(`^(?i)true$`)

// weaveSizeHeaders pairs each advisory X-Weave-* header with the
// ServerLimits field it's checked against (§4.10).
type weaveSizeHeader struct {
	name  string
	limit func(config.ServerLimits) int
}

var weaveSizeHeaders = []weaveSizeHeader{
	{"X-Weave-Records", func(l config.ServerLimits) int { return l.MaxPostRecords }},
	{"X-Weave-Bytes", func(l config.ServerLimits) int { return l.MaxPostBytes }},
	{"X-Weave-Total-Records", func(l config.ServerLimits) int { return l.MaxTotalRecords }},
	{"X-Weave-Total-Bytes", func(l config.ServerLimits) int { return l.MaxTotalBytes }},
}

// BatchGate is C10's descriptor: the combined, admitted `batch`/`commit`
// query parameters for a batch-upload request. ID is nil for the
// new-batch sentinel (an empty value or a case-insensitive "true"); a
// non-nil ID names an existing batch that BatchIDValidator, when one is
// supplied, has already confirmed. When neither parameter is present,
// ExtractBatchGate returns no BatchGate at all.
type BatchGate struct {
	ID     *string
	Commit bool
}

// BatchIDValidator is the admission core's view of the batch pool: only
// the one predicate C10 needs, so this package never has to import the
// storage package (and its sqlite dependency) to check a batch request.
type BatchIDValidator interface {
	ValidateBatchID(id string) bool
}

// ExtractBatchGate implements §4.10: advisory X-Weave-* size headers are
// checked against config.ServerLimits, then `batch`/`commit` are combined
// into one BatchGate (or nil when neither was supplied).
func ExtractBatchGate(r *http.Request, limits config.ServerLimits, validator BatchIDValidator) (*BatchGate, *RequestProblem) {
	for _, h := range weaveSizeHeaders {
		value := r.Header.Get(h.name)
		if value == "" {
			continue
		}
		count, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, apierror.ValidationProblem(apierror.LocationHeader, h.name,
				"request.validate.batch.invalid_x_weave", "invalid integer value: "+value)
		}
		if count > uint64(h.limit(limits)) {
			return nil, apierror.ValidationProblem(apierror.LocationHeader, h.name,
				"request.validate.batch.size_exceeded", "size-limit-exceeded")
		}
	}

	values := r.URL.Query()
	batch, hasBatch := values["batch"]
	commit, hasCommit := values["commit"]

	if !hasBatch && !hasCommit {
		return nil, nil
	}
	if !hasBatch {
		return nil, apierror.ValidationProblem(apierror.LocationPath, "batch",
			"request.validate.batch.missing_id", "commit with no batch specified")
	}

	if hasCommit {
		commitValue := ""
		if len(commit) > 0 {
			commitValue = commit[0]
		}
		if !trueRegex.MatchString(commitValue) {
			return nil, apierror.ValidationProblem(apierror.LocationQueryString, "commit",
				"request.validate.batch.invalid_commit", `commit parameter must be "true" to apply batches`)
		}
	}

	batchValue := ""
	if len(batch) > 0 {
		batchValue = batch[0]
	}

	gate := &BatchGate{Commit: hasCommit}

	if batchValue == "" || trueRegex.MatchString(batchValue) {
		return gate, nil
	}

	if validator != nil && !validator.ValidateBatchID(batchValue) {
		return nil, apierror.ValidationProblem(apierror.LocationQueryString, "batch",
			"request.validate.batch.invalid_id", `invalid batch ID: "`+batchValue+`"`)
	}

	gate.ID = &batchValue
	return gate, nil
}
