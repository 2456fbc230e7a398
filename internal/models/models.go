package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Borrower struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LastName  string    `gorm:"size:255;not null" json:"last_name"`
	FirstName string    `gorm:"size:255;not null" json:"first_name"`
}

func (b *Borrower) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

type Equipment struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string          `gorm:"size:255;not null" json:"name"`
	Category          string          `gorm:"size:255;not null;index" json:"category"`
	UnitPrice         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	AvailableQuantity int             `gorm:"not null" json:"available_quantity"`
}

func (e *Equipment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

type Loan struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BorrowerID  uuid.UUID `gorm:"type:uuid;not null;index" json:"borrower_id"`
	Borrower    Borrower  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	EquipmentID uuid.UUID `gorm:"type:uuid;not null;index" json:"equipment_id"`
	Equipment   Equipment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
	Returned    bool      `gorm:"not null;default:false;index" json:"returned"`
}

func (l *Loan) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// LoanRecord is the read projection returned by the loan listings: a Loan row
// joined with the borrower's name and the equipment's name/category.
type LoanRecord struct {
	LoanID            uuid.UUID `json:"loan_id"`
	BorrowerLastName  string    `json:"borrower_last_name"`
	BorrowerFirstName string    `json:"borrower_first_name"`
	EquipmentName     string    `json:"equipment_name"`
	EquipmentCategory string    `json:"equipment_category"`
	CreatedAt         time.Time `json:"created_at"`
	Returned          bool      `json:"returned"`
}
