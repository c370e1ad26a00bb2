package models

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

// Company ist die kanonische Identität einer Firma. Sie wird einmal pro Name aus den Seed-Daten angelegt.
type Company struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string `json:"name" gorm:"uniqueIndex;not null"`
	// NameFold ist der Vergleichsschlüssel für die Suche ohne Groß-/Kleinschreibung.
	NameFold   string `json:"-" gorm:"index;not null;default:''"`
	ExternalID string `json:"external_id,omitempty" gorm:"index"`

	AlternateNames []AlternateName `json:"alternate_names,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (Company) TableName() string {
	return "companies"
}

// BeforeCreate setzt den Vergleichsschlüssel.
func (c *Company) BeforeCreate(*gorm.DB) error {
	c.NameFold = FoldName(c.Name)
	return nil
}

// AlternateName ist ein alternativer Name, der genau zu einer Company gehört. Der Name ist global eindeutig.
type AlternateName struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	CompanyID  uint   `json:"company_id" gorm:"index;not null"`
	Name       string `json:"name" gorm:"uniqueIndex;not null"`
	NameFold   string `json:"-" gorm:"index;not null;default:''"`
	ExternalID string `json:"external_id,omitempty" gorm:"index"`
}

func (AlternateName) TableName() string {
	return "alternate_company_names"
}

func (a *AlternateName) BeforeCreate(*gorm.DB) error {
	a.NameFold = FoldName(a.Name)
	return nil
}

// NormalizeName bringt einen Namen in NFC-Form und entfernt Leerraum am Rand.
func NormalizeName(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}

// FoldName liefert den Vergleichsschlüssel eines Namens. Die Faltung passiert in Go und nicht in SQL,
// weil LOWER in sqlite nur ASCII-Buchstaben kennt.
func FoldName(name string) string {
	return strings.ToLower(NormalizeName(name))
}
