package patentsview

import (
	"iter"
	"strings"
)

const (
	// DefaultRequestBudget ist die praktische Obergrenze für die Länge einer Anfrage.
	DefaultRequestBudget = 2000
	// DefaultPerCallCap ist die maximale Anzahl IDs, die die API pro Aufruf annimmt.
	DefaultPerCallCap = 25
)

// Planner teilt ID-Listen in Batches, die sowohl das Zeichenbudget als auch das Limit pro Aufruf einhalten.
type Planner struct {
	Endpoint   string
	IDField    string
	Fields     []string
	Budget     int
	PerCallCap int
}

// NewPlanner erstellt einen Planner für einen Endpunkt der API.
func NewPlanner(api API, ep Endpoint, budget, perCallCap int) *Planner {
	if budget <= 0 {
		budget = DefaultRequestBudget
	}
	if perCallCap <= 0 {
		perCallCap = DefaultPerCallCap
	}
	return &Planner{
		Endpoint:   api.URL(ep),
		IDField:    ep.IDField,
		Fields:     ep.Fields,
		Budget:     budget,
		PerCallCap: perCallCap,
	}
}

// wrapperLen sind die festen Zeichen um die ID-Liste: ?q={"field":[ ... ]}&f=
func (p *Planner) wrapperLen() int {
	return len(`?q={"`) + len(p.IDField) + len(`":[`) + len(`]}`) + len(`&f=`)
}

func (p *Planner) fieldsLen() int {
	if len(p.Fields) == 0 {
		return 0
	}
	return len(`[""]`) + len(strings.Join(p.Fields, `","`))
}

// Estimate schätzt die serialisierte Länge einer einzelnen Anfrage über alle ids.
func (p *Planner) Estimate(ids []string) int {
	n := len(p.Endpoint) + p.wrapperLen() + p.fieldsLen()
	for i, id := range ids {
		n += len(id) + 2
		if i > 0 {
			n++
		}
	}
	return n
}

// Plan liefert die Batches in Originalreihenfolge. Eine leere Liste ergibt keine Batches.
func (p *Planner) Plan(ids []string) iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		if len(ids) == 0 {
			return
		}
		size := p.batchSize(ids)
		for start := 0; start < len(ids); start += size {
			end := min(start+size, len(ids))
			if !yield(ids[start:end:end]) {
				return
			}
		}
	}
}

func (p *Planner) batchSize(ids []string) int {
	total := len(ids)
	estimate := p.Estimate(ids)
	if estimate <= p.Budget && total <= p.PerCallCap {
		return total
	}

	chunks := max(ceilDiv(estimate, p.Budget), ceilDiv(total, p.PerCallCap))
	size := ceilDiv(total, chunks)
	// Die Schätzung ist ein Mittelwert; lange IDs können einen Batch trotzdem sprengen.
	for size > 1 && p.largestBatch(ids, size) > p.Budget {
		chunks++
		size = ceilDiv(total, chunks)
	}
	return size
}

func (p *Planner) largestBatch(ids []string, size int) int {
	largest := 0
	for start := 0; start < len(ids); start += size {
		largest = max(largest, p.Estimate(ids[start:min(start+size, len(ids))]))
	}
	return largest
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
