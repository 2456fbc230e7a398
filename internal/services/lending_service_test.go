package services_test

import (
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lendtrack/internal/models"
	"lendtrack/internal/repositories"
	"lendtrack/internal/services"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps the in-memory database shared across the pool.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Borrower{}, &models.Equipment{}, &models.Loan{}))
	return db
}

func newTestService(t *testing.T) (services.LendingService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	svc := services.NewLendingService(
		db,
		repositories.NewBorrowerRepository(db),
		repositories.NewEquipmentRepository(db),
		repositories.NewLoanRepository(db),
	)
	return svc, db
}

func addBorrower(t *testing.T, svc services.LendingService, last, first string) *models.Borrower {
	t.Helper()
	b, err := svc.AddBorrower(last, first)
	require.NoError(t, err)
	return b
}

func addEquipment(t *testing.T, svc services.LendingService, name, category string, price string, qty int) *models.Equipment {
	t.Helper()
	e, err := svc.AddEquipment(name, category, decimal.RequireFromString(price), qty)
	require.NoError(t, err)
	return e
}

// ─── Borrower Directory ───────────────────────────────────────────────────────

func TestAddBorrower(t *testing.T) {
	svc, _ := newTestService(t)

	b := addBorrower(t, svc, "Durand", "Paul")
	assert.NotEqual(t, uuid.Nil, b.ID)
	assert.Equal(t, "Durand", b.LastName)
	assert.Equal(t, "Paul", b.FirstName)

	got, err := svc.GetBorrower(b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

func TestAddBorrowerValidation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		name      string
		last      string
		first     string
	}{
		{"empty last name", "", "Paul"},
		{"empty first name", "Durand", ""},
		{"whitespace only", "   ", "Paul"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddBorrower(tc.last, tc.first)
			assert.ErrorIs(t, err, services.ErrBorrowerFieldsRequired)
		})
	}
}

func TestGetBorrowerNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetBorrower(uuid.New())
	assert.ErrorIs(t, err, services.ErrBorrowerNotFound)
}

func TestUpdateBorrower(t *testing.T) {
	svc, _ := newTestService(t)
	b := addBorrower(t, svc, "Durand", "Paul")

	changes, err := svc.UpdateBorrower(b.ID, "Martin", "Paul")
	require.NoError(t, err)
	assert.Equal(t, int64(1), changes)

	got, err := svc.GetBorrower(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Martin", got.LastName)

	_, err = svc.UpdateBorrower(uuid.New(), "Martin", "Paul")
	assert.ErrorIs(t, err, services.ErrBorrowerNotFound)

	_, err = svc.UpdateBorrower(b.ID, "", "Paul")
	assert.ErrorIs(t, err, services.ErrBorrowerFieldsRequired)
}

func TestDeleteBorrower(t *testing.T) {
	svc, _ := newTestService(t)
	b := addBorrower(t, svc, "Durand", "Paul")

	changes, err := svc.DeleteBorrower(b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changes)

	_, err = svc.DeleteBorrower(b.ID)
	assert.ErrorIs(t, err, services.ErrBorrowerNotFound)
}

func TestDeleteBorrowerBlockedByLoanHistory(t *testing.T) {
	svc, _ := newTestService(t)
	b := addBorrower(t, svc, "Durand", "Paul")
	e := addEquipment(t, svc, "Drill", "Power tools", "89.99", 1)

	loan, _, err := svc.CreateLoan(b.ID, e.ID)
	require.NoError(t, err)

	// Blocked while the loan is active.
	_, err = svc.DeleteBorrower(b.ID)
	assert.ErrorIs(t, err, services.ErrBorrowerHasLoans)

	// Still blocked after the loan is returned: history counts.
	_, err = svc.ReturnLoan(loan.ID)
	require.NoError(t, err)
	_, err = svc.DeleteBorrower(b.ID)
	assert.ErrorIs(t, err, services.ErrBorrowerHasLoans)
}

// ─── Equipment Catalog ────────────────────────────────────────────────────────

func TestAddEquipment(t *testing.T) {
	svc, _ := newTestService(t)

	e := addEquipment(t, svc, "Drill", "Power tools", "89.99", 3)
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, 3, e.AvailableQuantity)

	got, err := svc.GetEquipment(e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Drill", got.Name)
	assert.True(t, got.UnitPrice.Equal(decimal.RequireFromString("89.99")))
}

func TestAddEquipmentValidation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		name     string
		itemName string
		category string
		price    string
		qty      int
	}{
		{"empty name", "", "Power tools", "10", 1},
		{"empty category", "Drill", "", "10", 1},
		{"negative price", "Drill", "Power tools", "-1", 1},
		{"negative quantity", "Drill", "Power tools", "10", -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddEquipment(tc.itemName, tc.category, decimal.RequireFromString(tc.price), tc.qty)
			assert.ErrorIs(t, err, services.ErrEquipmentFieldsRequired)
		})
	}
}

func TestUpdateEquipment(t *testing.T) {
	svc, _ := newTestService(t)
	e := addEquipment(t, svc, "Drill", "Power tools", "89.99", 3)

	changes, err := svc.UpdateEquipment(e.ID, "Hammer drill", "Power tools", decimal.RequireFromString("129.00"), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changes)

	got, err := svc.GetEquipment(e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hammer drill", got.Name)
	assert.Equal(t, 5, got.AvailableQuantity)

	_, err = svc.UpdateEquipment(uuid.New(), "Hammer drill", "Power tools", decimal.RequireFromString("129.00"), 5)
	assert.ErrorIs(t, err, services.ErrEquipmentNotFound)
}

func TestDeleteEquipmentBlockedByLoanHistory(t *testing.T) {
	svc, _ := newTestService(t)
	b := addBorrower(t, svc, "Durand", "Paul")
	e := addEquipment(t, svc, "Drill", "Power tools", "89.99", 1)
	spare := addEquipment(t, svc, "Sander", "Power tools", "45.00", 1)

	loan, _, err := svc.CreateLoan(b.ID, e.ID)
	require.NoError(t, err)
	_, err = svc.ReturnLoan(loan.ID)
	require.NoError(t, err)

	_, err = svc.DeleteEquipment(e.ID)
	assert.ErrorIs(t, err, services.ErrEquipmentHasLoans)

	// Equipment with no loan history deletes cleanly.
	changes, err := svc.DeleteEquipment(spare.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changes)

	_, err = svc.DeleteEquipment(uuid.New())
	assert.ErrorIs(t, err, services.ErrEquipmentNotFound)
}

// ─── Loan State Machine ───────────────────────────────────────────────────────

// Covers the full lend-until-empty / return cycle against one equipment row.
func TestLoanLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	b := addBorrower(t, svc, "Durand", "Paul")
	e := addEquipment(t, svc, "Rifle", "Long", "100", 2)

	first, remaining, err := svc.CreateLoan(b.ID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
	assert.False(t, first.Returned)
	assert.Equal(t, b.ID, first.BorrowerID)
	assert.Equal(t, e.ID, first.EquipmentID)

	_, remaining, err = svc.CreateLoan(b.ID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	// Stock exhausted.
	_, _, err = svc.CreateLoan(b.ID, e.ID)
	assert.ErrorIs(t, err, services.ErrOutOfStock)

	// Returning the first loan puts the unit back.
	changes, err := svc.ReturnLoan(first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changes)

	got, err := svc.GetEquipment(e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableQuantity)

	// Double return is rejected and the counter moves only once.
	_, err = svc.ReturnLoan(first.ID)
	assert.ErrorIs(t, err, services.ErrLoanAlreadyReturned)

	got, err = svc.GetEquipment(e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableQuantity)
}

func TestCreateLoanUnknownBorrower(t *testing.T) {
	svc, _ := newTestService(t)
	e := addEquipment(t, svc, "Drill", "Power tools", "89.99", 2)

	_, _, err := svc.CreateLoan(uuid.New(), e.ID)
	assert.ErrorIs(t, err, services.ErrBorrowerNotFound)

	// The failed attempt must not touch the counter.
	got, err := svc.GetEquipment(e.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableQuantity)
}

func TestCreateLoanUnknownEquipment(t *testing.T) {
	svc, _ := newTestService(t)
	b := addBorrower(t, svc, "Durand", "Paul")

	_, _, err := svc.CreateLoan(b.ID, uuid.New())
	assert.ErrorIs(t, err, services.ErrEquipmentNotFound)
}

func TestCreateLoanMissingIDs(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.CreateLoan(uuid.Nil, uuid.New())
	assert.ErrorIs(t, err, services.ErrMissingLoanIDs)

	_, _, err = svc.CreateLoan(uuid.New(), uuid.Nil)
	assert.ErrorIs(t, err, services.ErrMissingLoanIDs)
}

func TestReturnLoanNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ReturnLoan(uuid.New())
	assert.ErrorIs(t, err, services.ErrLoanNotFound)
}

func TestStockNeverNegativeUnderConcurrency(t *testing.T) {
	svc, _ := newTestService(t)
	b := addBorrower(t, svc, "Durand", "Paul")
	e := addEquipment(t, svc, "Drill", "Power tools", "89.99", 3)

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			_, _, errs[idx] = svc.CreateLoan(b.ID, e.ID)
		}(i)
	}
	close(start)
	wg.Wait()

	var granted, outOfStock int
	for _, err := range errs {
		switch {
		case err == nil:
			granted++
		default:
			require.ErrorIs(t, err, services.ErrOutOfStock)
			outOfStock++
		}
	}
	assert.Equal(t, 3, granted)
	assert.Equal(t, attempts-3, outOfStock)

	got, err := svc.GetEquipment(e.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableQuantity)
}

// ─── Atomicity ────────────────────────────────────────────────────────────────

type failingLoanRepo struct {
	repositories.LoanRepository
	failCreate bool
}

func (r *failingLoanRepo) Create(db *gorm.DB, loan *models.Loan) error {
	if r.failCreate {
		return assert.AnError
	}
	return r.LoanRepository.Create(db, loan)
}

type failingEquipmentRepo struct {
	repositories.EquipmentRepository
	failIncrement bool
}

func (r *failingEquipmentRepo) IncrementStock(db *gorm.DB, id uuid.UUID) (int64, error) {
	if r.failIncrement {
		return 0, assert.AnError
	}
	return r.EquipmentRepository.IncrementStock(db, id)
}

// A storage fault after the stock decrement must roll the decrement back.
func TestCreateLoanRollsBackOnInsertFailure(t *testing.T) {
	db := newTestDB(t)
	borrowerRepo := repositories.NewBorrowerRepository(db)
	equipmentRepo := repositories.NewEquipmentRepository(db)
	loanRepo := &failingLoanRepo{LoanRepository: repositories.NewLoanRepository(db), failCreate: true}
	svc := services.NewLendingService(db, borrowerRepo, equipmentRepo, loanRepo)

	b := addBorrower(t, svc, "Durand", "Paul")
	e := addEquipment(t, svc, "Drill", "Power tools", "89.99", 2)

	_, _, err := svc.CreateLoan(b.ID, e.ID)
	require.Error(t, err)

	got, err := svc.GetEquipment(e.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableQuantity, "decrement must be rolled back")

	var loanCount int64
	require.NoError(t, db.Model(&models.Loan{}).Count(&loanCount).Error)
	assert.Zero(t, loanCount, "no loan row may survive the rollback")
}

// A storage fault after the returned flip must roll the flip back.
func TestReturnLoanRollsBackOnStockFailure(t *testing.T) {
	db := newTestDB(t)
	borrowerRepo := repositories.NewBorrowerRepository(db)
	equipmentRepo := &failingEquipmentRepo{EquipmentRepository: repositories.NewEquipmentRepository(db)}
	loanRepo := repositories.NewLoanRepository(db)
	svc := services.NewLendingService(db, borrowerRepo, equipmentRepo, loanRepo)

	b := addBorrower(t, svc, "Durand", "Paul")
	e := addEquipment(t, svc, "Drill", "Power tools", "89.99", 1)
	loan, _, err := svc.CreateLoan(b.ID, e.ID)
	require.NoError(t, err)

	equipmentRepo.failIncrement = true
	_, err = svc.ReturnLoan(loan.ID)
	require.Error(t, err)

	var reloaded models.Loan
	require.NoError(t, db.First(&reloaded, "id = ?", loan.ID).Error)
	assert.False(t, reloaded.Returned, "returned flip must be rolled back")

	got, err := svc.GetEquipment(e.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableQuantity)

	// Once the fault clears, the same return goes through exactly once.
	equipmentRepo.failIncrement = false
	changes, err := svc.ReturnLoan(loan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changes)
}

// ─── Loan Listings ────────────────────────────────────────────────────────────

func TestLoanListings(t *testing.T) {
	svc, _ := newTestService(t)
	b := addBorrower(t, svc, "Durand", "Paul")
	e := addEquipment(t, svc, "Rifle", "Long", "100", 2)

	first, _, err := svc.CreateLoan(b.ID, e.ID)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond) // distinct created_at for a stable order
	second, _, err := svc.CreateLoan(b.ID, e.ID)
	require.NoError(t, err)

	_, err = svc.ReturnLoan(first.ID)
	require.NoError(t, err)

	active, err := svc.ListActiveLoans()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].LoanID)
	assert.Equal(t, "Durand", active[0].BorrowerLastName)
	assert.Equal(t, "Paul", active[0].BorrowerFirstName)
	assert.Equal(t, "Rifle", active[0].EquipmentName)
	assert.Equal(t, "Long", active[0].EquipmentCategory)
	assert.False(t, active[0].Returned)

	all, err := svc.ListAllLoans()
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Newest first.
	assert.Equal(t, second.ID, all[0].LoanID)
	assert.Equal(t, first.ID, all[1].LoanID)
	assert.False(t, all[0].Returned)
	assert.True(t, all[1].Returned)
}

// ─── Statistics ───────────────────────────────────────────────────────────────

func TestStatistics(t *testing.T) {
	svc, _ := newTestService(t)

	b1 := addBorrower(t, svc, "Durand", "Paul")
	addBorrower(t, svc, "Martin", "Claire")
	e1 := addEquipment(t, svc, "Drill", "Power tools", "89.99", 2)
	addEquipment(t, svc, "Sander", "Power tools", "45.00", 1)
	addEquipment(t, svc, "Ladder", "Access", "120.00", 1)

	loan, _, err := svc.CreateLoan(b1.ID, e1.ID)
	require.NoError(t, err)
	_, _, err = svc.CreateLoan(b1.ID, e1.ID)
	require.NoError(t, err)
	_, err = svc.ReturnLoan(loan.ID)
	require.NoError(t, err)

	total, err := svc.CountEquipment()
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	categories, err := svc.CountEquipmentCategories()
	require.NoError(t, err)
	assert.Equal(t, int64(2), categories)

	borrowers, err := svc.CountBorrowers()
	require.NoError(t, err)
	assert.Equal(t, int64(2), borrowers)

	activeLoans, err := svc.CountActiveLoans()
	require.NoError(t, err)
	assert.Equal(t, int64(1), activeLoans)
}
