package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "finbridge/internal/errors"
	"finbridge/internal/models"
	"finbridge/internal/pagination"
	"finbridge/internal/services"
)

// TransactionHandler handles transaction read and correction requests.
type TransactionHandler struct {
	transactionService services.TransactionServicer
	audit              services.AuditServicer
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(transactionService services.TransactionServicer, audit services.AuditServicer) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService, audit: audit}
}

// transactionListQuery holds pagination plus the optional list filters.
type transactionListQuery struct {
	pagination.PageRequest
	FromDate   string `form:"from_date" binding:"omitempty,datetime=2006-01-02"`
	ToDate     string `form:"to_date" binding:"omitempty,datetime=2006-01-02"`
	Type       string `form:"type" binding:"omitempty,transaction_type"`
	CategoryID *uint  `form:"category_id" binding:"omitempty,min=1"`
	AccountID  *uint  `form:"account_id" binding:"omitempty,min=1"`
}

func (q *transactionListQuery) filter() services.TransactionFilter {
	var filter services.TransactionFilter
	if q.FromDate != "" {
		t, _ := time.Parse("2006-01-02", q.FromDate)
		filter.FromDate = &t
	}
	if q.ToDate != "" {
		t, _ := time.Parse("2006-01-02", q.ToDate)
		filter.ToDate = &t
	}
	if q.Type != "" {
		tt := models.TransactionType(q.Type)
		filter.Type = &tt
	}
	filter.CategoryID = q.CategoryID
	filter.AccountID = q.AccountID
	return filter
}

// UpdateCategoryRequest represents a category correction payload.
type UpdateCategoryRequest struct {
	CategoryID uint `json:"category_id" binding:"required,min=1"`
}

// GetTransactions lists the user's transactions across all accounts.
// @Summary     List transactions
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       page        query int    false "Page number"
// @Param       page_size   query int    false "Page size"
// @Param       from_date   query string false "Earliest date (YYYY-MM-DD)"
// @Param       to_date     query string false "Latest date (YYYY-MM-DD)"
// @Param       type        query string false "Transaction type"
// @Param       category_id query int    false "Category filter"
// @Param       account_id  query int    false "Account filter"
// @Success     200 {object} map[string]interface{} "Transactions"
// @Router      /transactions [get]
func (h *TransactionHandler) GetTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var query transactionListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	transactions, err := h.transactionService.GetUserTransactions(userID, query.PageRequest, query.filter())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, transactions)
}

// GetAccountTransactions lists transactions for one account.
// @Summary     List account transactions
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Account ID"
// @Success     200 {object} map[string]interface{} "Transactions"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Router      /accounts/{id}/transactions [get]
func (h *TransactionHandler) GetAccountTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	accountID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var query transactionListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	transactions, err := h.transactionService.GetAccountTransactions(userID, accountID, query.PageRequest, query.filter())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, transactions)
}

// GetTransaction returns one transaction by ID.
// @Summary     Get a transaction
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Transaction ID"
// @Success     200 {object} map[string]interface{} "Transaction"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Router      /transactions/{id} [get]
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	transactionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	transaction, err := h.transactionService.GetTransactionByID(userID, transactionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": transaction})
}

// UpdateCategory records a user's category correction for a transaction.
// @Summary     Correct a transaction's category
// @Description Reassign a transaction to a category; corrections train merchant patterns
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path int                   true "Transaction ID"
// @Param       request body UpdateCategoryRequest true "New category"
// @Success     200 {object} map[string]interface{} "Updated transaction"
// @Failure     404 {object} ErrorResponse "Transaction or category not found"
// @Router      /transactions/{id}/category [put]
func (h *TransactionHandler) UpdateCategory(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	transactionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	transaction, err := h.transactionService.UpdateTransactionCategory(userID, transactionID, req.CategoryID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.audit.Log(userID, "transaction.recategorized", "transaction", transactionID, c.ClientIP(), map[string]interface{}{
		"category_id": req.CategoryID,
	})

	c.JSON(http.StatusOK, gin.H{"transaction": transaction})
}
