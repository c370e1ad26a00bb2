package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"patent-hand/providers/patentsview"
	"patent-hand/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.OpenDialector(context.Background(), sqlite.Open("file::memory:"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedCompanies(t *testing.T, store *storage.Store, entries ...storage.SeedEntry) {
	t.Helper()
	_, err := store.ImportSeed(context.Background(), entries)
	require.NoError(t, err)
}

func searchAPI(t *testing.T) patentsview.API {
	t.Helper()
	api, err := patentsview.NewAPI(patentsview.GenerationSearch, "https://example.test")
	require.NoError(t, err)
	return api
}

type record = map[string]any

func patentRecord(number, org, externalID string) record {
	return record{
		"patent_id":    number,
		"patent_title": "Patent " + number,
		"patent_date":  "2019-03-05",
		"patent_year":  2019,
		"assignees": []record{
			{"assignee_id": externalID, "assignee_organization": org},
		},
		"cpc_current": []record{{"cpc_group_id": "G06F16/00"}},
	}
}

// fakeSearch beantwortet Anfragen der Search-API aus festen Daten: Patente pro Organisation
// und pro Nummer sowie Zitate pro zitierendem Patent. Jede Antwort ist genau eine Seite.
type fakeSearch struct {
	api       patentsview.API
	byOrg     map[string][]record
	byNumber  map[string]record
	citations map[string][]string
	calls     int
	onSend    func()
}

func newFakeSearch(api patentsview.API) *fakeSearch {
	return &fakeSearch{
		api:       api,
		byOrg:     map[string][]record{},
		byNumber:  map[string]record{},
		citations: map[string][]string{},
	}
}

func (f *fakeSearch) addPatent(number, org, externalID string) {
	r := patentRecord(number, org, externalID)
	f.byOrg[org] = append(f.byOrg[org], r)
	f.byNumber[number] = r
}

func (f *fakeSearch) Send(_ context.Context, ep patentsview.Endpoint, req patentsview.Request) ([]byte, error) {
	f.calls++
	if f.onSend != nil {
		f.onSend()
	}
	var records []record
	filter := req.Filter
	if filter.Op == patentsview.OpAnd && len(filter.Children) > 0 {
		filter = filter.Children[0]
	}

	switch {
	case ep.Name == f.api.Citations.Name:
		for _, citing := range filter.Value.([]string) {
			for i, cited := range f.citations[citing] {
				records = append(records, record{"patent_id": citing, "citation_patent_id": cited, "citation_sequence": i})
			}
		}
	case filter.Op == patentsview.OpTextPhrase:
		records = f.byOrg[filter.Value.(string)]
	default:
		for _, n := range filter.Value.([]string) {
			if r, ok := f.byNumber[n]; ok {
				records = append(records, r)
			}
		}
	}
	if records == nil {
		records = []record{}
	}
	return json.Marshal(map[string]any{ep.ResultKey: records, "count": len(records), "total_hits": len(records)})
}

func companyEntry(name string, alternates ...string) storage.SeedEntry {
	return storage.SeedEntry{Name: name, AlternateNames: alternates}
}

// senderFunc beantwortet jede Anfrage gleich.
type senderFunc func() ([]byte, error)

func (f senderFunc) Send(context.Context, patentsview.Endpoint, patentsview.Request) ([]byte, error) {
	return f()
}
