package patentsview

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Operatoren der Filter-Grammatik.
const (
	OpEq         = "_eq"
	OpTextPhrase = "_text_phrase"
	OpGte        = "_gte"
	OpLte        = "_lte"
	OpAnd        = "_and"
	OpOr         = "_or"
)

const (
	startLayout = "2006-01-02"
	endLayout   = "2006-01-02T15:04:05.999999"
)

// Filter ist ein Knoten im Filterbaum. Ohne Op ist es ein IN-Filter {"field": [values]},
// mit _and/_or eine Liste von Kindern, sonst {"op": {"field": value}}.
type Filter struct {
	Op       string
	Field    string
	Value    any
	Children []Filter
}

func (f Filter) MarshalJSON() ([]byte, error) {
	switch f.Op {
	case "":
		return json.Marshal(map[string]any{f.Field: f.Value})
	case OpAnd, OpOr:
		children := f.Children
		if children == nil {
			children = []Filter{}
		}
		return json.Marshal(map[string][]Filter{f.Op: children})
	default:
		return json.Marshal(map[string]map[string]any{f.Op: {f.Field: f.Value}})
	}
}

// YearRange ist ein optional offener Bereich von Gewährungsjahren. 0 bedeutet offen.
type YearRange struct {
	Begin int
	End   int
}

// YearStart liefert den 1. Januar des Jahres.
func YearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// YearEnd liefert den letzten darstellbaren Zeitpunkt des Jahres (1. Januar des Folgejahres minus eine Mikrosekunde).
func YearEnd(year int) time.Time {
	return YearStart(year + 1).Add(-time.Microsecond)
}

// OrganizationQuery baut den Filter für alle Patente einer Organisation, optional eingeschränkt auf einen Jahresbereich.
func (a API) OrganizationQuery(name string, years *YearRange) (Filter, error) {
	nameFilter := Filter{Op: a.NameOp, Field: a.OrgField, Value: strings.TrimSpace(name)}
	if years == nil {
		return nameFilter, nil
	}
	if years.Begin == 0 && years.End == 0 {
		return Filter{}, fmt.Errorf("%w: anfang oder ende muss gesetzt sein", ErrInvalidRange)
	}
	if years.Begin != 0 && years.End != 0 && years.Begin > years.End {
		return Filter{}, fmt.Errorf("%w: %d liegt nach %d", ErrInvalidRange, years.Begin, years.End)
	}

	children := []Filter{nameFilter}
	if years.Begin != 0 {
		children = append(children, Filter{Op: OpGte, Field: a.DateField, Value: YearStart(years.Begin).Format(startLayout)})
	}
	if years.End != 0 {
		children = append(children, Filter{Op: OpLte, Field: a.DateField, Value: YearEnd(years.End).Format(endLayout)})
	}
	return Filter{Op: OpAnd, Children: children}, nil
}

// IdentifierQuery baut einen IN-Filter über eine Liste von Patentnummern.
func IdentifierQuery(field string, ids []string) (Filter, error) {
	if len(ids) == 0 {
		return Filter{}, ErrEmptyInput
	}
	values := make([]string, len(ids))
	copy(values, ids)
	return Filter{Field: field, Value: values}, nil
}
