package patentsview

import (
	"context"
	"fmt"
	"iter"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// DefaultBatchThreshold begrenzt, wie viele Records der Walker sammelt, bevor er einen Batch ausgibt.
const DefaultBatchThreshold = 1000

// DefaultPageSize ist die Seitengröße, wenn keine konfiguriert ist.
const DefaultPageSize = 100

// Walker blättert durch alle Seiten einer Abfrage und gibt die Records in Batches aus.
type Walker struct {
	API            API
	Sender         Sender
	PageSize       int
	BatchThreshold int
	Logger         *zap.Logger
}

// NewWalker erstellt einen Walker.
func NewWalker(api API, sender Sender, pageSize, batchThreshold int, logger *zap.Logger) *Walker {
	if batchThreshold <= 0 {
		batchThreshold = DefaultBatchThreshold
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Walker{API: api, Sender: sender, PageSize: pageSize, BatchThreshold: batchThreshold, Logger: logger}
}

type page struct {
	records []gjson.Result
	total   int
}

// Walk liefert die vollständige Ergebnismenge der Abfrage. Ein Fehler wird einmal ausgegeben und beendet die Sequenz.
func (w *Walker) Walk(ctx context.Context, ep Endpoint, filter Filter) iter.Seq2[[]gjson.Result, error] {
	return func(yield func([]gjson.Result, error) bool) {
		log := w.Logger.With(zap.String("endpoint", ep.Name), zap.Stringer("mode", ep.Mode))
		var acc []gjson.Result
		stopped := false

		// emit gibt volle Batches aus; mit final auch den Rest.
		emit := func(final bool) bool {
			for len(acc) >= w.BatchThreshold || (final && len(acc) > 0) {
				n := min(len(acc), w.BatchThreshold)
				batch := acc[:n:n]
				acc = acc[n:]
				if !yield(batch, nil) {
					stopped = true
					return false
				}
			}
			return true
		}

		var err error
		switch ep.Mode {
		case ModeCursor:
			err = w.walkCursor(ctx, ep, filter, func(records []gjson.Result) bool {
				acc = append(acc, records...)
				return emit(false)
			})
		default:
			err = w.walkOffset(ctx, ep, filter, func(records []gjson.Result) bool {
				acc = append(acc, records...)
				return emit(false)
			})
		}
		if stopped {
			return
		}
		if err != nil {
			yield(nil, err)
			return
		}
		if emit(true) {
			log.Debug("Abfrage vollständig geladen")
		}
	}
}

func (w *Walker) walkOffset(ctx context.Context, ep Endpoint, filter Filter, consume func([]gjson.Result) bool) error {
	seen := 0
	totalPages := 1
	for pageNo := 1; pageNo <= totalPages; pageNo++ {
		p, err := w.fetch(ctx, ep, Request{
			Filter:  filter,
			Fields:  ep.Fields,
			Options: Options{Page: pageNo, PerPage: w.PageSize},
			Sort:    ep.Sort(),
		})
		if err != nil {
			return err
		}
		seen += len(p.records)
		totalPages = ceilDiv(p.total, w.PageSize)
		w.Logger.Debug("Seite geladen", zap.String("endpoint", ep.Name), zap.Int("page", pageNo), zap.Int("total_pages", totalPages), zap.Int("total", p.total))

		if !consume(p.records) {
			return nil
		}
		if len(p.records) == 0 || seen >= p.total {
			return nil
		}
	}
	return nil
}

func (w *Walker) walkCursor(ctx context.Context, ep Endpoint, filter Filter, consume func([]gjson.Result) bool) error {
	var after any
	for {
		p, err := w.fetch(ctx, ep, Request{
			Filter:  filter,
			Fields:  ep.Fields,
			Options: Options{Size: w.PageSize, After: after},
			Sort:    ep.Sort(),
		})
		if err != nil {
			return err
		}
		w.Logger.Debug("Seite geladen", zap.String("endpoint", ep.Name), zap.Any("after", after), zap.Int("count", len(p.records)))

		if !consume(p.records) {
			return nil
		}
		if len(p.records) < w.PageSize {
			return nil
		}
		after = cursor(ep, p.records[len(p.records)-1])
	}
}

func (w *Walker) fetch(ctx context.Context, ep Endpoint, req Request) (page, error) {
	body, err := w.Sender.Send(ctx, ep, req)
	if err != nil {
		return page{}, err
	}
	if !gjson.ValidBytes(body) {
		return page{}, fmt.Errorf("ungültige json-antwort von %s", ep.Name)
	}
	res := gjson.ParseBytes(body)
	return page{
		records: res.Get(ep.ResultKey).Array(),
		total:   int(res.Get(w.API.TotalKey).Int()),
	}, nil
}
