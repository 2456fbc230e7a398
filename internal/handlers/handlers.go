package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lendtrack/internal/services"
)

type LendingHandler struct {
	svc services.LendingService
}

func RegisterRoutes(r *gin.Engine, svc services.LendingService) {
	h := &LendingHandler{svc: svc}

	// Borrower directory
	r.GET("/borrowers", h.listBorrowers)
	r.POST("/borrowers", h.addBorrower)
	r.GET("/borrowers/:id", h.getBorrower)
	r.PUT("/borrowers/:id", h.updateBorrower)
	r.DELETE("/borrowers/:id", h.deleteBorrower)

	// Equipment catalog
	r.GET("/equipment", h.listEquipment)
	r.POST("/equipment", h.addEquipment)
	r.GET("/equipment/:id", h.getEquipment)
	r.PUT("/equipment/:id", h.updateEquipment)
	r.DELETE("/equipment/:id", h.deleteEquipment)

	// Loans
	r.POST("/loans", h.createLoan)
	r.GET("/loans", h.listActiveLoans)
	r.GET("/loans/history", h.listAllLoans)
	r.PUT("/loans/:id/return", h.returnLoan)

	// Dashboard statistics
	r.GET("/stats/total-equipment", h.statTotalEquipment)
	r.GET("/stats/equipment-categories", h.statEquipmentCategories)
	r.GET("/stats/total-borrowers", h.statTotalBorrowers)
	r.GET("/stats/active-loans", h.statActiveLoans)
}

// statusForError maps the service sentinel errors onto the four status
// classes of the API contract: validation 400, not found 404, conflict 409,
// anything else is an internal fault.
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrBorrowerFieldsRequired),
		errors.Is(err, services.ErrEquipmentFieldsRequired),
		errors.Is(err, services.ErrMissingLoanIDs),
		errors.Is(err, services.ErrLoanAlreadyReturned):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrBorrowerNotFound),
		errors.Is(err, services.ErrEquipmentNotFound),
		errors.Is(err, services.ErrLoanNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrBorrowerHasLoans),
		errors.Is(err, services.ErrEquipmentHasLoans),
		errors.Is(err, services.ErrOutOfStock):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}

func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// ─── Borrowers ────────────────────────────────────────────────────────────────

type borrowerRequest struct {
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name"`
}

func (h *LendingHandler) listBorrowers(c *gin.Context) {
	borrowers, err := h.svc.ListBorrowers()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowers)
}

func (h *LendingHandler) getBorrower(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	borrower, err := h.svc.GetBorrower(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, borrower)
}

func (h *LendingHandler) addBorrower(c *gin.Context) {
	var req borrowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	borrower, err := h.svc.AddBorrower(req.LastName, req.FirstName)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, borrower)
}

func (h *LendingHandler) updateBorrower(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req borrowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	changes, err := h.svc.UpdateBorrower(id, req.LastName, req.FirstName)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

func (h *LendingHandler) deleteBorrower(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	changes, err := h.svc.DeleteBorrower(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

// ─── Equipment ────────────────────────────────────────────────────────────────

// Price and quantity are pointers so an absent field is distinguishable from a
// legitimate zero value.
type equipmentRequest struct {
	Name              string           `json:"name"`
	Category          string           `json:"category"`
	UnitPrice         *decimal.Decimal `json:"unit_price"`
	AvailableQuantity *int             `json:"available_quantity"`
}

func (h *LendingHandler) listEquipment(c *gin.Context) {
	equipment, err := h.svc.ListEquipment()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, equipment)
}

func (h *LendingHandler) getEquipment(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	equipment, err := h.svc.GetEquipment(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, equipment)
}

func (h *LendingHandler) addEquipment(c *gin.Context) {
	var req equipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UnitPrice == nil || req.AvailableQuantity == nil {
		fail(c, services.ErrEquipmentFieldsRequired)
		return
	}
	equipment, err := h.svc.AddEquipment(req.Name, req.Category, *req.UnitPrice, *req.AvailableQuantity)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, equipment)
}

func (h *LendingHandler) updateEquipment(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req equipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UnitPrice == nil || req.AvailableQuantity == nil {
		fail(c, services.ErrEquipmentFieldsRequired)
		return
	}
	changes, err := h.svc.UpdateEquipment(id, req.Name, req.Category, *req.UnitPrice, *req.AvailableQuantity)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

func (h *LendingHandler) deleteEquipment(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	changes, err := h.svc.DeleteEquipment(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

// ─── Loans ────────────────────────────────────────────────────────────────────

type createLoanRequest struct {
	BorrowerID  string `json:"borrower_id" binding:"required,uuid"`
	EquipmentID string `json:"equipment_id" binding:"required,uuid"`
}

func (h *LendingHandler) createLoan(c *gin.Context) {
	var req createLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	borrowerID, err := uuid.Parse(req.BorrowerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid borrower id"})
		return
	}
	equipmentID, err := uuid.Parse(req.EquipmentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid equipment id"})
		return
	}

	loan, remaining, err := h.svc.CreateLoan(borrowerID, equipmentID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"loan_id":            loan.ID,
		"borrower_id":        loan.BorrowerID,
		"equipment_id":       loan.EquipmentID,
		"available_quantity": remaining,
	})
}

func (h *LendingHandler) returnLoan(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	changes, err := h.svc.ReturnLoan(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

func (h *LendingHandler) listActiveLoans(c *gin.Context) {
	records, err := h.svc.ListActiveLoans()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *LendingHandler) listAllLoans(c *gin.Context) {
	records, err := h.svc.ListAllLoans()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// ─── Statistics ───────────────────────────────────────────────────────────────

func (h *LendingHandler) statTotalEquipment(c *gin.Context) {
	h.statCount(c, h.svc.CountEquipment)
}

func (h *LendingHandler) statEquipmentCategories(c *gin.Context) {
	h.statCount(c, h.svc.CountEquipmentCategories)
}

func (h *LendingHandler) statTotalBorrowers(c *gin.Context) {
	h.statCount(c, h.svc.CountBorrowers)
}

func (h *LendingHandler) statActiveLoans(c *gin.Context) {
	h.statCount(c, h.svc.CountActiveLoans)
}

func (h *LendingHandler) statCount(c *gin.Context, count func() (int64, error)) {
	n, err := count()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": n})
}
