package patentsview

import (
	"fmt"
	"strings"
)

// Generation wählt die Version der PatentsView-API.
type Generation int

const (
	// GenerationLegacy ist die alte GET-API (q/f/o/so, Seitennummern).
	GenerationLegacy Generation = 1
	// GenerationSearch ist die PatentSearch-API (POST, API-Key, Cursor).
	GenerationSearch Generation = 2
)

// PaginationMode legt fest, wie ein Endpunkt durch seine Ergebnisse blättert.
type PaginationMode int

const (
	ModeOffset PaginationMode = iota
	ModeCursor
)

func (m PaginationMode) String() string {
	if m == ModeCursor {
		return "cursor"
	}
	return "offset"
}

// Endpoint beschreibt einen abfragbaren Endpunkt samt Ergebnis-Schlüssel und Sortierung.
type Endpoint struct {
	Name       string
	Path       string
	ResultKey  string
	IDField    string
	Fields     []string
	SortFields []string
	Mode       PaginationMode
}

// Sort liefert die Sortierung des Endpunkts: natürlicher Identifier absteigend.
func (e Endpoint) Sort() []map[string]string {
	sort := make([]map[string]string, 0, len(e.SortFields))
	for _, f := range e.SortFields {
		sort = append(sort, map[string]string{f: "desc"})
	}
	return sort
}

// API bündelt alles, was sich zwischen den API-Generationen unterscheidet.
type API struct {
	Generation Generation
	BaseURL    string
	TotalKey   string
	// OrgField und NameOp steuern den Namensfilter der Organisationsabfrage.
	OrgField  string
	NameOp    string
	DateField string

	Patents   Endpoint
	Citations Endpoint

	schema schema
}

// URL setzt Basis-URL und Pfad eines Endpunkts zusammen.
func (a API) URL(ep Endpoint) string {
	return strings.TrimRight(a.BaseURL, "/") + ep.Path
}

// NewAPI liefert die Endpunkt-Konfiguration für eine Generation. Ein leerer baseURL nimmt den Standard.
func NewAPI(gen Generation, baseURL string) (API, error) {
	switch gen {
	case GenerationLegacy:
		if baseURL == "" {
			baseURL = "https://api.patentsview.org"
		}
		return API{
			Generation: gen,
			BaseURL:    baseURL,
			TotalKey:   "total_patent_count",
			OrgField:   "assignee_organization",
			NameOp:     OpEq,
			DateField:  "patent_date",
			Patents: Endpoint{
				Name:      "patents",
				Path:      "/patents/query",
				ResultKey: "patents",
				IDField:   "patent_number",
				Fields: []string{
					"patent_number", "patent_title", "patent_date", "patent_year",
					"assignee_id", "assignee_organization", "assignee_first_name", "assignee_last_name",
					"uspc_mainclass_id",
				},
				SortFields: []string{"patent_number"},
				Mode:       ModeOffset,
			},
			Citations: Endpoint{
				Name:       "cited_patents",
				Path:       "/patents/query",
				ResultKey:  "patents",
				IDField:    "patent_number",
				Fields:     []string{"patent_number", "cited_patent_number"},
				SortFields: []string{"patent_number"},
				Mode:       ModeOffset,
			},
			schema: legacySchema,
		}, nil
	case GenerationSearch:
		if baseURL == "" {
			baseURL = "https://search.patentsview.org/api/v1"
		}
		return API{
			Generation: gen,
			BaseURL:    baseURL,
			TotalKey:   "total_hits",
			OrgField:   "assignees.assignee_organization",
			NameOp:     OpTextPhrase,
			DateField:  "patent_date",
			Patents: Endpoint{
				Name:      "patent",
				Path:      "/patent/",
				ResultKey: "patents",
				IDField:   "patent_id",
				Fields: []string{
					"patent_id", "patent_title", "patent_date", "patent_year",
					"assignees.assignee_id", "assignees.assignee_organization",
					"assignees.assignee_individual_name_first", "assignees.assignee_individual_name_last",
					"cpc_current.cpc_group_id",
				},
				SortFields: []string{"patent_id"},
				Mode:       ModeCursor,
			},
			Citations: Endpoint{
				Name:       "us_patent_citation",
				Path:       "/patent/us_patent_citation/",
				ResultKey:  "us_patent_citations",
				IDField:    "patent_id",
				Fields:     []string{"patent_id", "citation_patent_id", "citation_sequence"},
				SortFields: []string{"patent_id", "citation_sequence"},
				Mode:       ModeCursor,
			},
			schema: searchSchema,
		}, nil
	default:
		return API{}, fmt.Errorf("unbekannte api-generation %d", gen)
	}
}
