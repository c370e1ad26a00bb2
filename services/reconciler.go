package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"patent-hand/metrics"
	"patent-hand/models"
	"patent-hand/providers/patentsview"
	"patent-hand/storage"
)

// PatentStore ist der Teil des Stores, den der Reconciler braucht.
type PatentStore interface {
	FindCompanyFold(ctx context.Context, name string) (*models.Company, error)
	FindAlternateNameFold(ctx context.Context, name string) (*models.AlternateName, error)
	PatentExists(ctx context.Context, number string, companyID uint, aliasID *uint) (bool, error)
	SavePatents(ctx context.Context, patents []models.Patent, ids storage.ExternalIDs) error
}

// Reconciler ordnet geladene Patente Companies bzw. alternativen Namen zu und speichert nur neue Zuordnungen.
type Reconciler struct {
	Store  PatentStore
	Logger *zap.Logger
}

// NewReconciler erstellt einen Reconciler.
func NewReconciler(store PatentStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{Store: store, Logger: logger}
}

// ReconcileResult zählt das Ergebnis eines Reconcile-Aufrufs.
type ReconcileResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Unresolved int `json:"unresolved"`
}

func (r *ReconcileResult) add(o ReconcileResult) {
	r.Inserted += o.Inserted
	r.Duplicates += o.Duplicates
	r.Unresolved += o.Unresolved
}

type resolution struct {
	company *models.Company
	alias   *models.AlternateName
}

type attribution struct {
	number    string
	companyID uint
	aliasID   uint
}

// Reconcile legt für jeden auflösbaren Assignee eines Patents eine Zeile an, sofern das Tripel
// (Patentnummer, Company, AlternateName) noch nicht existiert. Bestehende Zeilen werden nie aktualisiert.
// Alle neuen Zeilen werden am Ende gemeinsam gespeichert.
func (r *Reconciler) Reconcile(ctx context.Context, patents []patentsview.Patent) (ReconcileResult, error) {
	var result ReconcileResult
	var staged []models.Patent
	seen := make(map[attribution]struct{})
	resolved := make(map[string]*resolution)
	ids := storage.ExternalIDs{Companies: map[uint]string{}, AlternateNames: map[uint]string{}}

	for _, p := range patents {
		codes := classCodes(p.Classes)
		for _, as := range p.Assignees {
			res, err := r.resolve(ctx, as.Organization, resolved)
			if err != nil {
				return result, err
			}
			if res == nil {
				result.Unresolved++
				metrics.UnresolvedAssignees.Inc()
				r.Logger.Debug("Assignee nicht zuordenbar, übersprungen",
					zap.String("patent_number", p.Number), zap.String("assignee", as.Organization))
				continue
			}

			key := attribution{number: p.Number, companyID: res.company.ID}
			var aliasID *uint
			if res.alias != nil {
				key.aliasID = res.alias.ID
				id := res.alias.ID
				aliasID = &id
			}
			if _, dup := seen[key]; dup {
				result.Duplicates++
				continue
			}
			seen[key] = struct{}{}

			exists, err := r.Store.PatentExists(ctx, p.Number, res.company.ID, aliasID)
			if err != nil {
				return result, fmt.Errorf("existenzprüfung für %s: %w", p.Number, err)
			}
			if exists {
				result.Duplicates++
				continue
			}

			staged = append(staged, models.Patent{
				PatentNumber:           p.Number,
				CompanyID:              res.company.ID,
				CompanyAlternateNameID: aliasID,
				PatentTitle:            p.Title,
				Year:                   p.Year,
				GrantDate:              p.Date,
				ClassCodes:             codes,
				AssigneeFirstName:      optional(as.FirstName),
				AssigneeLastName:       optional(as.LastName),
			})
			attachExternalID(ids, res, as.ExternalID)
		}
	}

	if err := r.Store.SavePatents(ctx, staged, ids); err != nil {
		return result, err
	}
	result.Inserted = len(staged)
	metrics.PatentsInserted.Add(float64(len(staged)))
	r.Logger.Info("Patente abgeglichen",
		zap.Int("fetched", len(patents)),
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("unresolved", result.Unresolved))
	return result, nil
}

// resolve sucht zuerst eine Company, dann einen alternativen Namen. nil heißt nicht zuordenbar.
func (r *Reconciler) resolve(ctx context.Context, organization string, cache map[string]*resolution) (*resolution, error) {
	name := models.FoldName(organization)
	if name == "" {
		// Einzelpersonen ohne Organisationsnamen
		return nil, nil
	}
	if res, ok := cache[name]; ok {
		return res, nil
	}

	company, err := r.Store.FindCompanyFold(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("company-suche %q: %w", name, err)
	}
	if company != nil {
		res := &resolution{company: company}
		cache[name] = res
		return res, nil
	}

	alias, err := r.Store.FindAlternateNameFold(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("suche alternativer name %q: %w", name, err)
	}
	if alias == nil {
		cache[name] = nil
		return nil, nil
	}
	res := &resolution{company: &models.Company{ID: alias.CompanyID}, alias: alias}
	cache[name] = res
	return res, nil
}

// attachExternalID merkt sich die Assignee-ID der API für eine Company oder einen alternativen Namen ohne ID.
func attachExternalID(ids storage.ExternalIDs, res *resolution, external string) {
	if external == "" {
		return
	}
	if res.alias != nil {
		if res.alias.ExternalID == "" {
			ids.AlternateNames[res.alias.ID] = external
			res.alias.ExternalID = external
		}
		return
	}
	if res.company.ExternalID == "" {
		ids.Companies[res.company.ID] = external
		res.company.ExternalID = external
	}
}

// classCodes verbindet die Klassifikationscodes mit Semikolon. Keine Codes ergeben NULL.
func classCodes(classes []string) *string {
	var codes []string
	seen := make(map[string]bool)
	for _, c := range classes {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		codes = append(codes, c)
	}
	if len(codes) == 0 {
		return nil
	}
	joined := strings.Join(codes, ";")
	return &joined
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
