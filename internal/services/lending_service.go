package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"lendtrack/internal/models"
	"lendtrack/internal/repositories"
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrBorrowerFieldsRequired is returned when a borrower add/update is missing
	// the last name or first name.
	ErrBorrowerFieldsRequired = errors.New("last name and first name are required")

	// ErrEquipmentFieldsRequired is returned when an equipment add/update is
	// missing a field or carries a negative price/quantity.
	ErrEquipmentFieldsRequired = errors.New("name, category, a non-negative unit price and a non-negative quantity are required")

	// ErrMissingLoanIDs is returned when a loan is requested without both a
	// borrower id and an equipment id.
	ErrMissingLoanIDs = errors.New("borrower id and equipment id are required")

	// ErrBorrowerNotFound is returned when the referenced borrower does not exist.
	ErrBorrowerNotFound = errors.New("borrower not found")

	// ErrEquipmentNotFound is returned when the referenced equipment does not exist.
	ErrEquipmentNotFound = errors.New("equipment not found")

	// ErrLoanNotFound is returned when the referenced loan does not exist.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrBorrowerHasLoans is returned when a borrower delete is blocked by loan
	// history (active or returned).
	ErrBorrowerHasLoans = errors.New("borrower has loan records and cannot be deleted")

	// ErrEquipmentHasLoans is returned when an equipment delete is blocked by
	// loan history (active or returned).
	ErrEquipmentHasLoans = errors.New("equipment has loan records and cannot be deleted")

	// ErrOutOfStock is returned when a loan is requested against equipment with
	// no available units.
	ErrOutOfStock = errors.New("no available stock for this equipment")

	// ErrLoanAlreadyReturned is returned when a return is attempted on a loan
	// that has already been marked returned.
	ErrLoanAlreadyReturned = errors.New("loan already returned")
)

// ─── Service Interface ────────────────────────────────────────────────────────

// LendingService defines the application-level operations of the loan ledger.
type LendingService interface {
	ListBorrowers() ([]models.Borrower, error)
	GetBorrower(id uuid.UUID) (*models.Borrower, error)
	AddBorrower(lastName, firstName string) (*models.Borrower, error)
	UpdateBorrower(id uuid.UUID, lastName, firstName string) (int64, error)
	DeleteBorrower(id uuid.UUID) (int64, error)

	ListEquipment() ([]models.Equipment, error)
	GetEquipment(id uuid.UUID) (*models.Equipment, error)
	AddEquipment(name, category string, unitPrice decimal.Decimal, availableQuantity int) (*models.Equipment, error)
	UpdateEquipment(id uuid.UUID, name, category string, unitPrice decimal.Decimal, availableQuantity int) (int64, error)
	DeleteEquipment(id uuid.UUID) (int64, error)

	CreateLoan(borrowerID, equipmentID uuid.UUID) (*models.Loan, int, error)
	ReturnLoan(loanID uuid.UUID) (int64, error)
	ListActiveLoans() ([]models.LoanRecord, error)
	ListAllLoans() ([]models.LoanRecord, error)

	CountEquipment() (int64, error)
	CountEquipmentCategories() (int64, error)
	CountBorrowers() (int64, error)
	CountActiveLoans() (int64, error)
}

// ─── Implementation ───────────────────────────────────────────────────────────

type lendingService struct {
	db            *gorm.DB
	borrowerRepo  repositories.BorrowerRepository
	equipmentRepo repositories.EquipmentRepository
	loanRepo      repositories.LoanRepository
}

// NewLendingService wires up all dependencies and returns a LendingService.
func NewLendingService(
	db *gorm.DB,
	borrowerRepo repositories.BorrowerRepository,
	equipmentRepo repositories.EquipmentRepository,
	loanRepo repositories.LoanRepository,
) LendingService {
	return &lendingService{
		db:            db,
		borrowerRepo:  borrowerRepo,
		equipmentRepo: equipmentRepo,
		loanRepo:      loanRepo,
	}
}

// ─── Borrower Directory ───────────────────────────────────────────────────────

// ListBorrowers returns all borrowers in the directory.
func (s *lendingService) ListBorrowers() ([]models.Borrower, error) {
	return s.borrowerRepo.List(nil)
}

// GetBorrower returns a single borrower by id.
func (s *lendingService) GetBorrower(id uuid.UUID) (*models.Borrower, error) {
	borrower, err := s.borrowerRepo.GetByID(nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBorrowerNotFound
		}
		return nil, err
	}
	return borrower, nil
}

// AddBorrower creates a borrower record. Both name fields must be non-empty.
func (s *lendingService) AddBorrower(lastName, firstName string) (*models.Borrower, error) {
	if strings.TrimSpace(lastName) == "" || strings.TrimSpace(firstName) == "" {
		return nil, ErrBorrowerFieldsRequired
	}
	borrower := &models.Borrower{
		LastName:  lastName,
		FirstName: firstName,
	}
	if err := s.borrowerRepo.Create(nil, borrower); err != nil {
		log.Printf("[ERROR] AddBorrower: failed to create borrower record: %v", err)
		return nil, err
	}
	log.Printf("[INFO] AddBorrower: created borrower %s %s (id=%s)", borrower.FirstName, borrower.LastName, borrower.ID)
	return borrower, nil
}

// UpdateBorrower replaces both name fields of an existing borrower. Zero rows
// affected means the id does not exist.
func (s *lendingService) UpdateBorrower(id uuid.UUID, lastName, firstName string) (int64, error) {
	if strings.TrimSpace(lastName) == "" || strings.TrimSpace(firstName) == "" {
		return 0, ErrBorrowerFieldsRequired
	}
	rows, err := s.borrowerRepo.Update(nil, id, lastName, firstName)
	if err != nil {
		log.Printf("[ERROR] UpdateBorrower: failed to update borrower %s: %v", id, err)
		return 0, err
	}
	if rows == 0 {
		return 0, ErrBorrowerNotFound
	}
	return rows, nil
}

// DeleteBorrower removes a borrower, refusing while any loan record (active or
// returned) still references it. The reference check and the delete run in one
// transaction so a loan created in between cannot orphan itself.
func (s *lendingService) DeleteBorrower(id uuid.UUID) (int64, error) {
	var rows int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		n, err := s.loanRepo.CountByBorrower(tx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Printf("[WARN] DeleteBorrower: borrower %s has %d loan record(s), delete blocked", id, n)
			return ErrBorrowerHasLoans
		}
		rows, err = s.borrowerRepo.Delete(tx, id)
		if err != nil {
			log.Printf("[ERROR] DeleteBorrower: failed to delete borrower %s: %v", id, err)
			return err
		}
		if rows == 0 {
			return ErrBorrowerNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Printf("[INFO] DeleteBorrower: deleted borrower %s", id)
	return rows, nil
}

// ─── Equipment Catalog ────────────────────────────────────────────────────────

// ListEquipment returns all equipment in the catalog.
func (s *lendingService) ListEquipment() ([]models.Equipment, error) {
	return s.equipmentRepo.List(nil)
}

// GetEquipment returns a single equipment record by id.
func (s *lendingService) GetEquipment(id uuid.UUID) (*models.Equipment, error) {
	equipment, err := s.equipmentRepo.GetByID(nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEquipmentNotFound
		}
		return nil, err
	}
	return equipment, nil
}

// AddEquipment creates an equipment record with its starting stock level.
func (s *lendingService) AddEquipment(name, category string, unitPrice decimal.Decimal, availableQuantity int) (*models.Equipment, error) {
	if err := validateEquipmentFields(name, category, unitPrice, availableQuantity); err != nil {
		return nil, err
	}
	equipment := &models.Equipment{
		Name:              name,
		Category:          category,
		UnitPrice:         unitPrice,
		AvailableQuantity: availableQuantity,
	}
	if err := s.equipmentRepo.Create(nil, equipment); err != nil {
		log.Printf("[ERROR] AddEquipment: failed to create equipment record: %v", err)
		return nil, err
	}
	log.Printf("[INFO] AddEquipment: created equipment %q (id=%s, category=%s, stock=%d)", equipment.Name, equipment.ID, equipment.Category, equipment.AvailableQuantity)
	return equipment, nil
}

// UpdateEquipment replaces all four fields of an existing equipment record.
// Overwriting available_quantity here bypasses the loan path, so it is the
// caller's way of restocking; loan bookkeeping still keeps the counter
// consistent afterwards.
func (s *lendingService) UpdateEquipment(id uuid.UUID, name, category string, unitPrice decimal.Decimal, availableQuantity int) (int64, error) {
	if err := validateEquipmentFields(name, category, unitPrice, availableQuantity); err != nil {
		return 0, err
	}
	rows, err := s.equipmentRepo.Update(nil, id, name, category, unitPrice, availableQuantity)
	if err != nil {
		log.Printf("[ERROR] UpdateEquipment: failed to update equipment %s: %v", id, err)
		return 0, err
	}
	if rows == 0 {
		return 0, ErrEquipmentNotFound
	}
	return rows, nil
}

// DeleteEquipment removes an equipment record, refusing while any loan record
// references it.
func (s *lendingService) DeleteEquipment(id uuid.UUID) (int64, error) {
	var rows int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		n, err := s.loanRepo.CountByEquipment(tx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Printf("[WARN] DeleteEquipment: equipment %s has %d loan record(s), delete blocked", id, n)
			return ErrEquipmentHasLoans
		}
		rows, err = s.equipmentRepo.Delete(tx, id)
		if err != nil {
			log.Printf("[ERROR] DeleteEquipment: failed to delete equipment %s: %v", id, err)
			return err
		}
		if rows == 0 {
			return ErrEquipmentNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Printf("[INFO] DeleteEquipment: deleted equipment %s", id)
	return rows, nil
}

func validateEquipmentFields(name, category string, unitPrice decimal.Decimal, availableQuantity int) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(category) == "" {
		return ErrEquipmentFieldsRequired
	}
	if unitPrice.IsNegative() || availableQuantity < 0 {
		return ErrEquipmentFieldsRequired
	}
	return nil
}

// ─── Loan State Machine ───────────────────────────────────────────────────────

// CreateLoan implements the transactional loan flow.
//
// Steps (all in one transaction):
//  1. Validate borrower and equipment exist.
//  2. Reject when the equipment has no stock.
//  3. Decrement available_quantity with a conditional update; zero affected
//     rows means a concurrent loan drained the last unit first, which is the
//     same out-of-stock outcome.
//  4. Insert the loan row.
//
// Returns the new loan together with the equipment's resulting stock level,
// read back inside the same transaction.
func (s *lendingService) CreateLoan(borrowerID, equipmentID uuid.UUID) (*models.Loan, int, error) {
	if borrowerID == uuid.Nil || equipmentID == uuid.Nil {
		return nil, 0, ErrMissingLoanIDs
	}

	var loan *models.Loan
	var remaining int

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.borrowerRepo.GetByID(tx, borrowerID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBorrowerNotFound
			}
			return err
		}

		equipment, err := s.equipmentRepo.GetByID(tx, equipmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEquipmentNotFound
			}
			return err
		}
		if equipment.AvailableQuantity <= 0 {
			log.Printf("[WARN] CreateLoan: equipment %s out of stock (quantity=%d)", equipmentID, equipment.AvailableQuantity)
			return ErrOutOfStock
		}

		rows, err := s.equipmentRepo.DecrementStock(tx, equipmentID)
		if err != nil {
			log.Printf("[ERROR] CreateLoan: failed to decrement stock for equipment %s: %v", equipmentID, err)
			return err
		}
		if rows == 0 {
			// Lost the race for the last unit.
			log.Printf("[WARN] CreateLoan: equipment %s drained concurrently", equipmentID)
			return ErrOutOfStock
		}

		newLoan := &models.Loan{
			BorrowerID:  borrowerID,
			EquipmentID: equipmentID,
			CreatedAt:   time.Now().UTC(),
			Returned:    false,
		}
		if err := s.loanRepo.Create(tx, newLoan); err != nil {
			log.Printf("[ERROR] CreateLoan: failed to create loan record: %v", err)
			return err
		}

		updated, err := s.equipmentRepo.GetByID(tx, equipmentID)
		if err != nil {
			return err
		}
		loan = newLoan
		remaining = updated.AvailableQuantity
		return nil
	})

	if err != nil {
		return nil, 0, err
	}
	log.Printf("[INFO] CreateLoan: loan created (id=%s) for borrower %s / equipment %s, stock now %d", loan.ID, borrowerID, equipmentID, remaining)
	return loan, remaining, nil
}

// ReturnLoan implements the transactional return flow.
//
// Steps (all in one transaction):
//  1. Resolve the loan; missing id is NotFound, already returned is a domain
//     rule violation distinct from NotFound.
//  2. Flip returned with a conditional update; zero affected rows means a
//     concurrent return won, which is the same already-returned outcome.
//  3. Put the unit back on the shelf.
//
// Returns the number of loan rows changed (1 on success).
func (s *lendingService) ReturnLoan(loanID uuid.UUID) (int64, error) {
	var changed int64

	err := s.db.Transaction(func(tx *gorm.DB) error {
		loan, err := s.loanRepo.GetByID(tx, loanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLoanNotFound
			}
			return err
		}
		if loan.Returned {
			log.Printf("[WARN] ReturnLoan: loan %s already returned", loanID)
			return ErrLoanAlreadyReturned
		}

		rows, err := s.loanRepo.MarkReturned(tx, loanID)
		if err != nil {
			log.Printf("[ERROR] ReturnLoan: failed to mark loan %s returned: %v", loanID, err)
			return err
		}
		if rows == 0 {
			log.Printf("[WARN] ReturnLoan: loan %s returned concurrently", loanID)
			return ErrLoanAlreadyReturned
		}

		stockRows, err := s.equipmentRepo.IncrementStock(tx, loan.EquipmentID)
		if err != nil {
			log.Printf("[ERROR] ReturnLoan: failed to restore stock for equipment %s: %v", loan.EquipmentID, err)
			return err
		}
		if stockRows != 1 {
			// The FK makes this unreachable in practice; rolling back keeps the
			// loan flag and the counter in step regardless.
			return fmt.Errorf("stock restore for equipment %s affected %d rows", loan.EquipmentID, stockRows)
		}

		changed = rows
		return nil
	})

	if err != nil {
		return 0, err
	}
	log.Printf("[INFO] ReturnLoan: loan %s returned, stock restored", loanID)
	return changed, nil
}

// ListActiveLoans returns unreturned loans joined with borrower and equipment
// details, most recent first.
func (s *lendingService) ListActiveLoans() ([]models.LoanRecord, error) {
	return s.loanRepo.ListRecords(nil, true)
}

// ListAllLoans returns the full loan history, most recent first.
func (s *lendingService) ListAllLoans() ([]models.LoanRecord, error) {
	return s.loanRepo.ListRecords(nil, false)
}

// ─── Statistics ───────────────────────────────────────────────────────────────

func (s *lendingService) CountEquipment() (int64, error) {
	return s.equipmentRepo.Count(nil)
}

func (s *lendingService) CountEquipmentCategories() (int64, error) {
	return s.equipmentRepo.CountCategories(nil)
}

func (s *lendingService) CountBorrowers() (int64, error) {
	return s.borrowerRepo.Count(nil)
}

func (s *lendingService) CountActiveLoans() (int64, error) {
	return s.loanRepo.CountActive(nil)
}
