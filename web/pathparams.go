package web

import (
	"net/url"
	"regexp"
	"strings"
)

// Wire-exact id shapes (§4.5/§4.6). Do not loosen these to match the
// teacher's older syncstorage.BSOIdOk/CollectionNameOk, which predate the
// tighter grammar this service's clients now rely on.
var (
	bsoIDRegex        = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)
	collectionIDRegex = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,32}$`)
)

// BSOIDOk reports whether id matches the BSO id grammar.
func BSOIDOk(id string) bool { return bsoIDRegex.MatchString(id) }

// CollectionIDOk reports whether name matches the collection id grammar.
func CollectionIDOk(name string) bool { return collectionIDRegex.MatchString(name) }

// CollectionParam is C5's collection-scoped path descriptor.
type CollectionParam struct {
	Collection string
}

// BsoParam is C5's BSO-scoped path descriptor.
type BsoParam struct {
	Bso string
}

// splitStoragePath splits path into its '/'-delimited elements the way
// the teacher's and original extractors.rs's path parsers do: by raw
// split, not by a path-templating router, so the exact element count and
// position checks from §4.5 are reproduced faithfully.
func splitStoragePath(path string) []string {
	return strings.Split(path, "/")
}

// ExtractCollectionParam implements §4.5's collection extraction for
// /1.5/{uid}/storage/{collection}[/{bso}]. It returns ok=false (no error)
// when the path simply isn't storage-shaped, matching the source's
// Option<CollectionParam> extrusion.
func ExtractCollectionParam(path string) (CollectionParam, bool, *RequestProblem) {
	elements := splitStoragePath(path)
	if len(elements) < 5 || len(elements) > 6 || elements[3] != "storage" {
		return CollectionParam{}, false, nil
	}

	raw := elements[4]
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return CollectionParam{}, false, ValidationProblem(LocationPath, "collection",
			"request.process.invalid_collection", "invalid collection")
	}

	if !CollectionIDOk(decoded) {
		return CollectionParam{}, false, ValidationProblem(LocationPath, "collection",
			"request.process.invalid_collection", "invalid collection")
	}

	return CollectionParam{Collection: decoded}, true, nil
}

// ExtractBsoParam implements §4.5's BSO extraction for
// /1.5/{uid}/storage/{collection}/{bso}.
func ExtractBsoParam(path string) (BsoParam, *RequestProblem) {
	elements := splitStoragePath(path)
	if len(elements) != 6 || elements[3] != "storage" {
		return BsoParam{}, ValidationProblem(LocationPath, "bso",
			"request.process.invalid_bso", "invalid bso")
	}

	decoded, err := url.QueryUnescape(elements[5])
	if err != nil {
		return BsoParam{}, ValidationProblem(LocationPath, "bso",
			"request.process.invalid_bso", "invalid bso")
	}

	if !BSOIDOk(decoded) {
		return BsoParam{}, ValidationProblem(LocationPath, "bso",
			"request.process.invalid_bso", "invalid bso")
	}

	return BsoParam{Bso: decoded}, nil
}
