package patentsview

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Patent ist ein von der API geliefertes Patent, unabhängig von der API-Generation.
type Patent struct {
	Number    string
	Title     string
	Date      string
	Year      string
	Classes   []string
	Assignees []Assignee
}

// Assignee ist ein Rechteinhaber eines Patents. Organisationen haben einen Namen, Einzelpersonen nur Vor- und Nachname.
type Assignee struct {
	ExternalID   string
	Organization string
	FirstName    string
	LastName     string
}

// Citation ist eine gerichtete Kante: Citing zitiert Cited.
type Citation struct {
	Citing string
	Cited  string
}

// schema enthält die gjson-Pfade der Felder einer API-Generation.
type schema struct {
	number, title, date, year string
	classes                   string
	assignees                 string
	assigneeID, org           string
	firstName, lastName       string
	// Zitate: entweder eine Zeile pro Kante (citing/cited) oder verschachtelt pro Patent (citedList).
	citing, cited, citedList string
}

var legacySchema = schema{
	number:     "patent_number",
	title:      "patent_title",
	date:       "patent_date",
	year:       "patent_year",
	classes:    "uspcs.#.uspc_mainclass_id",
	assignees:  "assignees",
	assigneeID: "assignee_id",
	org:        "assignee_organization",
	firstName:  "assignee_first_name",
	lastName:   "assignee_last_name",
	citing:     "patent_number",
	citedList:  "cited_patents.#.cited_patent_number",
}

var searchSchema = schema{
	number:     "patent_id",
	title:      "patent_title",
	date:       "patent_date",
	year:       "patent_year",
	classes:    "cpc_current.#.cpc_group_id",
	assignees:  "assignees",
	assigneeID: "assignee_id",
	org:        "assignee_organization",
	firstName:  "assignee_individual_name_first",
	lastName:   "assignee_individual_name_last",
	citing:     "patent_id",
	cited:      "citation_patent_id",
}

// DecodePatents wandelt Roh-Records des Patent-Endpunkts in Patents um. Records ohne Nummer werden verworfen.
func (a API) DecodePatents(records []gjson.Result) []Patent {
	s := a.schema
	patents := make([]Patent, 0, len(records))
	for _, r := range records {
		number := strings.TrimSpace(r.Get(s.number).String())
		if number == "" {
			continue
		}
		p := Patent{
			Number: number,
			Title:  r.Get(s.title).String(),
			Date:   r.Get(s.date).String(),
			Year:   r.Get(s.year).String(),
		}
		for _, c := range r.Get(s.classes).Array() {
			p.Classes = append(p.Classes, c.String())
		}
		for _, as := range r.Get(s.assignees).Array() {
			p.Assignees = append(p.Assignees, Assignee{
				ExternalID:   as.Get(s.assigneeID).String(),
				Organization: as.Get(s.org).String(),
				FirstName:    as.Get(s.firstName).String(),
				LastName:     as.Get(s.lastName).String(),
			})
		}
		patents = append(patents, p)
	}
	return patents
}

// DecodeCitations wandelt Roh-Records des Zitat-Endpunkts in Kanten um. Selbstzitate werden unverändert durchgereicht.
func (a API) DecodeCitations(records []gjson.Result) []Citation {
	s := a.schema
	var citations []Citation
	for _, r := range records {
		citing := strings.TrimSpace(r.Get(s.citing).String())
		if citing == "" {
			continue
		}
		if s.citedList != "" {
			for _, cited := range r.Get(s.citedList).Array() {
				if c := strings.TrimSpace(cited.String()); c != "" {
					citations = append(citations, Citation{Citing: citing, Cited: c})
				}
			}
			continue
		}
		if cited := strings.TrimSpace(r.Get(s.cited).String()); cited != "" {
			citations = append(citations, Citation{Citing: citing, Cited: cited})
		}
	}
	return citations
}

// cursor liefert die Werte der Sortierfelder eines Records für den after-Parameter.
func cursor(ep Endpoint, last gjson.Result) any {
	if len(ep.SortFields) == 1 {
		return last.Get(ep.SortFields[0]).Value()
	}
	values := make([]any, 0, len(ep.SortFields))
	for _, f := range ep.SortFields {
		values = append(values, last.Get(f).Value())
	}
	return values
}
