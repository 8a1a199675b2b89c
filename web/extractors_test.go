package web

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCollectionParamValid(t *testing.T) {
	cp, ok, problem := ExtractCollectionParam("/1.5/1/storage/col2")
	require.Nil(t, problem)
	require.True(t, ok)
	assert.Equal(t, "col2", cp.Collection)
}

func TestExtractCollectionParamInvalid(t *testing.T) {
	long := make([]byte, 33)
	for i := range long {
		long[i] = 'a'
	}
	_, ok, problem := ExtractCollectionParam("/1.5/1/storage/" + string(long))
	assert.False(t, ok)
	require.NotNil(t, problem)
	assert.Equal(t, http.StatusBadRequest, problem.Status)
}

func TestExtractCollectionParamNotStorage(t *testing.T) {
	_, ok, problem := ExtractCollectionParam("/1.5/1/info/collections")
	assert.False(t, ok)
	assert.Nil(t, problem)
}

func TestExtractBsoParamRoundtripsURLEncoding(t *testing.T) {
	// a quoted/curly-bracketed id must decode then re-validate, per §4.5.
	bp, problem := ExtractBsoParam("/1.5/1/storage/col2/%7B123%7D")
	require.Nil(t, problem)
	assert.Equal(t, "{123}", bp.Bso)
}

func TestExtractBsoParamInvalid(t *testing.T) {
	_, problem := ExtractBsoParam("/1.5/1/storage/col2/bad id")
	require.NotNil(t, problem)
	assert.Equal(t, http.StatusBadRequest, problem.Status)
}

func TestExtractPreConditionHeaderConflict(t *testing.T) {
	h := http.Header{}
	h.Set("X-If-Modified-Since", "1.00")
	h.Set("X-If-Unmodified-Since", "2.00")

	_, problem := ExtractPreConditionHeader(h)
	require.NotNil(t, problem)
	assert.Equal(t, "request.validate.mod_header.conflict", problem.Metric)
}

func TestExtractPreConditionHeaderNegative(t *testing.T) {
	h := http.Header{}
	h.Set("X-If-Modified-Since", "-1.00")

	_, problem := ExtractPreConditionHeader(h)
	require.NotNil(t, problem)
	assert.Equal(t, "request.validate.mod_header.negative", problem.Metric)
}

func TestExtractPreConditionHeaderNone(t *testing.T) {
	got, problem := ExtractPreConditionHeader(http.Header{})
	require.Nil(t, problem)
	assert.Equal(t, PreConditionNone, got.Kind)
}

func TestOffsetRoundTrip(t *testing.T) {
	o := Offset{Value: 123456}
	parsed, err := ParseOffset(o.String())
	require.NoError(t, err)
	assert.Equal(t, o.Value, parsed.Value)
	assert.Nil(t, parsed.Timestamp)
}

func TestExtractQueryParamsIdsTrimsAndDrops(t *testing.T) {
	values := url.Values{"ids": {" abc , , def "}}
	params, problem := ExtractQueryParams(values)
	require.Nil(t, problem)
	assert.Equal(t, []string{"abc", "def"}, params.Ids)
}

func TestExtractQueryParamsTooManyIds(t *testing.T) {
	many := make([]string, 0, BATCH_MAX_IDS+1)
	for i := 0; i <= BATCH_MAX_IDS; i++ {
		many = append(many, "a")
	}
	values := url.Values{}
	ids := ""
	for i, id := range many {
		if i > 0 {
			ids += ","
		}
		ids += id
	}
	values.Set("ids", ids)

	_, problem := ExtractQueryParams(values)
	require.NotNil(t, problem)
	assert.Equal(t, "request.validate.querystring.too_many_ids", problem.Metric)
}

func TestExtractQueryParamsFullIsPresenceOnly(t *testing.T) {
	values := url.Values{"full": {""}}
	params, problem := ExtractQueryParams(values)
	require.Nil(t, problem)
	assert.True(t, params.Full)
}

func TestExtractQueryParamsNegativeOlder(t *testing.T) {
	values := url.Values{"older": {"-5"}}
	_, problem := ExtractQueryParams(values)
	require.NotNil(t, problem)
}

func TestExtractQueryParamsDefaultSort(t *testing.T) {
	params, problem := ExtractQueryParams(url.Values{})
	require.Nil(t, problem)
	assert.Equal(t, SortNone, params.Sort)
}
