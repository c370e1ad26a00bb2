package models

import "time"

// Patent ist ein geladenes Patent, zugeordnet zu einer Company und optional einem AlternateName.
// Dieselbe Patentnummer darf mehrfach vorkommen, aber nie zweimal mit derselben Zuordnung.
// idx_patents_attribution greift nur mit gesetztem AlternateName, da NULL-Werte als verschieden gelten;
// Zeilen ohne AlternateName sichert der Teilindex idx_patents_unaliased.
type Patent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	PatentNumber           string `json:"patent_number" gorm:"index:idx_patents_attribution,unique;index:idx_patents_unaliased,unique,where:company_alternate_name_id IS NULL;not null"`
	CompanyID              uint   `json:"company_id" gorm:"index:idx_patents_attribution,unique;index:idx_patents_unaliased,unique,where:company_alternate_name_id IS NULL;not null"`
	CompanyAlternateNameID *uint  `json:"company_alternate_name_id,omitempty" gorm:"index:idx_patents_attribution,unique"`

	PatentTitle       string  `json:"patent_title"`
	Year              string  `json:"year"`
	GrantDate         string  `json:"grant_date"`
	ClassCodes        *string `json:"class_codes,omitempty"`
	AssigneeFirstName *string `json:"assignee_first_name,omitempty"`
	AssigneeLastName  *string `json:"assignee_last_name,omitempty"`
}

func (Patent) TableName() string {
	return "patents"
}

// CitedPatent modelliert eine gerichtete Kante: CitingPatentNumber zitiert CitedPatentNumber.
// Die zitierte Nummer muss (noch) kein Patent in der Datenbank haben.
type CitedPatent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	CitingPatentNumber string `json:"citing_patent_number" gorm:"index:idx_cited_patents_edge,unique;not null"`
	CitedPatentNumber  string `json:"cited_patent_number" gorm:"index:idx_cited_patents_edge,unique;index;not null"`
}

func (CitedPatent) TableName() string {
	return "cited_patents"
}
