package repositories

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"lendtrack/internal/models"
)

type BorrowerRepository interface {
	Create(db *gorm.DB, borrower *models.Borrower) error
	List(db *gorm.DB) ([]models.Borrower, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Borrower, error)
	Update(db *gorm.DB, id uuid.UUID, lastName, firstName string) (int64, error)
	Delete(db *gorm.DB, id uuid.UUID) (int64, error)
	Count(db *gorm.DB) (int64, error)
}

type EquipmentRepository interface {
	Create(db *gorm.DB, equipment *models.Equipment) error
	List(db *gorm.DB) ([]models.Equipment, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Equipment, error)
	Update(db *gorm.DB, id uuid.UUID, name, category string, unitPrice decimal.Decimal, availableQuantity int) (int64, error)
	Delete(db *gorm.DB, id uuid.UUID) (int64, error)
	DecrementStock(db *gorm.DB, id uuid.UUID) (int64, error)
	IncrementStock(db *gorm.DB, id uuid.UUID) (int64, error)
	Count(db *gorm.DB) (int64, error)
	CountCategories(db *gorm.DB) (int64, error)
}

type LoanRepository interface {
	Create(db *gorm.DB, loan *models.Loan) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	MarkReturned(db *gorm.DB, id uuid.UUID) (int64, error)
	ListRecords(db *gorm.DB, activeOnly bool) ([]models.LoanRecord, error)
	CountByBorrower(db *gorm.DB, borrowerID uuid.UUID) (int64, error)
	CountByEquipment(db *gorm.DB, equipmentID uuid.UUID) (int64, error)
	CountActive(db *gorm.DB) (int64, error)
}

// concrete implementations

type borrowerRepository struct {
	db *gorm.DB
}

func NewBorrowerRepository(db *gorm.DB) BorrowerRepository {
	return &borrowerRepository{db: db}
}

func (r *borrowerRepository) Create(db *gorm.DB, borrower *models.Borrower) error {
	if db == nil {
		db = r.db
	}
	return db.Create(borrower).Error
}

func (r *borrowerRepository) List(db *gorm.DB) ([]models.Borrower, error) {
	if db == nil {
		db = r.db
	}
	var borrowers []models.Borrower
	if err := db.Find(&borrowers).Error; err != nil {
		return nil, err
	}
	return borrowers, nil
}

func (r *borrowerRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Borrower, error) {
	if db == nil {
		db = r.db
	}
	var borrower models.Borrower
	if err := db.First(&borrower, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &borrower, nil
}

func (r *borrowerRepository) Update(db *gorm.DB, id uuid.UUID, lastName, firstName string) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Borrower{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_name":  lastName,
			"first_name": firstName,
		})
	return res.RowsAffected, res.Error
}

func (r *borrowerRepository) Delete(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Delete(&models.Borrower{}, "id = ?", id)
	return res.RowsAffected, res.Error
}

func (r *borrowerRepository) Count(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Borrower{}).Count(&n).Error
	return n, err
}

type equipmentRepository struct {
	db *gorm.DB
}

func NewEquipmentRepository(db *gorm.DB) EquipmentRepository {
	return &equipmentRepository{db: db}
}

func (r *equipmentRepository) Create(db *gorm.DB, equipment *models.Equipment) error {
	if db == nil {
		db = r.db
	}
	return db.Create(equipment).Error
}

func (r *equipmentRepository) List(db *gorm.DB) ([]models.Equipment, error) {
	if db == nil {
		db = r.db
	}
	var equipment []models.Equipment
	if err := db.Find(&equipment).Error; err != nil {
		return nil, err
	}
	return equipment, nil
}

func (r *equipmentRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Equipment, error) {
	if db == nil {
		db = r.db
	}
	var equipment models.Equipment
	if err := db.First(&equipment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &equipment, nil
}

func (r *equipmentRepository) Update(db *gorm.DB, id uuid.UUID, name, category string, unitPrice decimal.Decimal, availableQuantity int) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Equipment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"name":               name,
			"category":           category,
			"unit_price":         unitPrice,
			"available_quantity": availableQuantity,
		})
	return res.RowsAffected, res.Error
}

func (r *equipmentRepository) Delete(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Delete(&models.Equipment{}, "id = ?", id)
	return res.RowsAffected, res.Error
}

// DecrementStock takes one unit off the shelf. The quantity guard in the WHERE
// clause makes the decrement conditional, so a concurrent caller that drains
// the last unit first leaves this update with zero affected rows instead of
// driving the counter negative.
func (r *equipmentRepository) DecrementStock(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Equipment{}).
		Where("id = ? AND available_quantity > 0", id).
		UpdateColumn("available_quantity", gorm.Expr("available_quantity - ?", 1))
	return res.RowsAffected, res.Error
}

func (r *equipmentRepository) IncrementStock(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Equipment{}).
		Where("id = ?", id).
		UpdateColumn("available_quantity", gorm.Expr("available_quantity + ?", 1))
	return res.RowsAffected, res.Error
}

func (r *equipmentRepository) Count(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Equipment{}).Count(&n).Error
	return n, err
}

func (r *equipmentRepository) CountCategories(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Equipment{}).
		Distinct("category").
		Count(&n).Error
	return n, err
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(db *gorm.DB, loan *models.Loan) error {
	if db == nil {
		db = r.db
	}
	return db.Create(loan).Error
}

func (r *loanRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	if err := db.First(&loan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// MarkReturned flips the returned flag. The `returned = false` guard means a
// loan can only transition once; a second caller sees zero affected rows.
func (r *loanRepository) MarkReturned(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Loan{}).
		Where("id = ? AND returned = ?", id, false).
		Update("returned", true)
	return res.RowsAffected, res.Error
}

func (r *loanRepository) ListRecords(db *gorm.DB, activeOnly bool) ([]models.LoanRecord, error) {
	if db == nil {
		db = r.db
	}
	q := db.Table("loans").
		Select(`loans.id AS loan_id,
			borrowers.last_name AS borrower_last_name,
			borrowers.first_name AS borrower_first_name,
			equipment.name AS equipment_name,
			equipment.category AS equipment_category,
			loans.created_at,
			loans.returned`).
		Joins("JOIN borrowers ON borrowers.id = loans.borrower_id").
		Joins("JOIN equipment ON equipment.id = loans.equipment_id").
		Order("loans.created_at DESC")
	if activeOnly {
		q = q.Where("loans.returned = ?", false)
	}
	var records []models.LoanRecord
	if err := q.Scan(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *loanRepository) CountByBorrower(db *gorm.DB, borrowerID uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Loan{}).
		Where("borrower_id = ?", borrowerID).
		Count(&n).Error
	return n, err
}

func (r *loanRepository) CountByEquipment(db *gorm.DB, equipmentID uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Loan{}).
		Where("equipment_id = ?", equipmentID).
		Count(&n).Error
	return n, err
}

func (r *loanRepository) CountActive(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Loan{}).
		Where("returned = ?", false).
		Count(&n).Error
	return n, err
}
