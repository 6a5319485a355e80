package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "finbridge/internal/errors"
	"finbridge/internal/services"
)

// CategorizeHandler exposes the categorization engine for previewing how a
// description would be categorized, without importing anything.
type CategorizeHandler struct {
	categorizer services.CategorizerServicer
}

// NewCategorizeHandler creates a new CategorizeHandler.
func NewCategorizeHandler(categorizer services.CategorizerServicer) *CategorizeHandler {
	return &CategorizeHandler{categorizer: categorizer}
}

// CategorizeRequest carries the descriptions to preview.
type CategorizeRequest struct {
	Descriptions []string `json:"descriptions" binding:"required,min=1,max=100,dive,max=500"`
}

// Preview runs the categorization engine over the given descriptions.
// @Summary     Preview categorization
// @Description Run the categorization engine over raw descriptions without importing
// @Tags        categorization
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CategorizeRequest true "Descriptions to categorize"
// @Success     200 {object} map[string]interface{} "Per-description results"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Router      /categorize [post]
func (h *CategorizeHandler) Preview(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CategorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	results, err := h.categorizer.CategorizeBatch(userID, req.Descriptions)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}
