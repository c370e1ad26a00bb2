package patentsview

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAPI(t *testing.T, gen Generation, baseURL string) API {
	t.Helper()
	api, err := NewAPI(gen, baseURL)
	require.NoError(t, err)
	return api
}

func TestOrganizationQueryWithoutRange(t *testing.T) {
	api := mustAPI(t, GenerationLegacy, "")
	f, err := api.OrganizationQuery("  Acme Corp ", nil)
	require.NoError(t, err)

	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"_eq":{"assignee_organization":"Acme Corp"}}`, string(b))
}

func TestOrganizationQuerySearchGeneration(t *testing.T) {
	api := mustAPI(t, GenerationSearch, "")
	f, err := api.OrganizationQuery("Acme Corp", &YearRange{Begin: 2010, End: 2012})
	require.NoError(t, err)

	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"_and":[
		{"_text_phrase":{"assignees.assignee_organization":"Acme Corp"}},
		{"_gte":{"patent_date":"2010-01-01"}},
		{"_lte":{"patent_date":"2012-12-31T23:59:59.999999"}}
	]}`, string(b))
}

func TestOrganizationQueryOpenBounds(t *testing.T) {
	api := mustAPI(t, GenerationLegacy, "")

	t.Run("nur anfang", func(t *testing.T) {
		f, err := api.OrganizationQuery("Acme", &YearRange{Begin: 2015})
		require.NoError(t, err)
		require.Len(t, f.Children, 2)
		assert.Equal(t, OpGte, f.Children[1].Op)
		assert.Equal(t, "2015-01-01", f.Children[1].Value)
	})

	t.Run("nur ende", func(t *testing.T) {
		f, err := api.OrganizationQuery("Acme", &YearRange{End: 2015})
		require.NoError(t, err)
		require.Len(t, f.Children, 2)
		assert.Equal(t, OpLte, f.Children[1].Op)
		assert.Equal(t, "2015-12-31T23:59:59.999999", f.Children[1].Value)
	})
}

func TestOrganizationQueryInvalidRange(t *testing.T) {
	api := mustAPI(t, GenerationLegacy, "")

	_, err := api.OrganizationQuery("Acme", &YearRange{})
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = api.OrganizationQuery("Acme", &YearRange{Begin: 2020, End: 2019})
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestYearBoundsCoverWholeYears(t *testing.T) {
	for year := 1976; year <= 2030; year++ {
		start, end := YearStart(year), YearEnd(year)
		assert.Equal(t, year, start.Year())
		assert.Equal(t, year, end.Year())
		assert.Equal(t, YearStart(year+1), end.Add(time.Microsecond))
		// 31. Dezember, letzte Mikrosekunde
		assert.Equal(t, time.December, end.Month())
		assert.Equal(t, 31, end.Day())
	}
}

func TestIdentifierQuery(t *testing.T) {
	_, err := IdentifierQuery("patent_id", nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	ids := []string{"7000001", "7000002"}
	f, err := IdentifierQuery("patent_id", ids)
	require.NoError(t, err)
	ids[0] = "verändert"

	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"patent_id":["7000001","7000002"]}`, string(b))
}

func TestFilterMarshalEmptyAnd(t *testing.T) {
	b, err := json.Marshal(Filter{Op: OpOr})
	require.NoError(t, err)
	assert.JSONEq(t, `{"_or":[]}`, string(b))
}
