package web

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/mozilla-services/syncstorage-admission/apierror"
	"github.com/mozilla-services/syncstorage-admission/token"
)

// UserIdentifier is C4's descriptor: the uid taken from the request path,
// cross-checked against the authenticated HAWK token payload.
type UserIdentifier struct {
	Uid uint64
}

// ExtractIdentity implements §4.4: the uid segment at /1.5/{uid}/... must
// URL-decode and parse as a uint64, and must equal the uid embedded in
// the already-verified token payload. A mismatch is reported as
// apierror.UidConflictProblem: a 400 validation failure at location Path
// with the legacy body "0", not a 401.
func ExtractIdentity(path string, payload token.TokenPayload) (*UserIdentifier, *RequestProblem) {
	elements := strings.Split(path, "/")
	if len(elements) < 3 || elements[1] != "1.5" {
		return nil, apierror.ValidationProblem(apierror.LocationPath, "uid",
			"request.process.invalid_uid", "path is not a versioned storage path")
	}

	raw, err := url.QueryUnescape(elements[2])
	if err != nil {
		return nil, invalidUidProblem()
	}

	uid, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, invalidUidProblem()
	}

	if uid != payload.Uid {
		return nil, apierror.UidConflictProblem()
	}

	return &UserIdentifier{Uid: uid}, nil
}

func invalidUidProblem() *RequestProblem {
	return apierror.ValidationProblem(apierror.LocationPath, "uid",
		"request.process.invalid_uid", "uid is not a valid integer")
}
