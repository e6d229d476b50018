package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/api/middleware"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/services"
)

// RestContractorHandler serves contractor profiles.
type RestContractorHandler struct {
	contractorService services.IContractorService
}

// NewRestContractorHandler creates a new RestContractorHandler.
func NewRestContractorHandler(contractorService services.IContractorService) *RestContractorHandler {
	return &RestContractorHandler{contractorService: contractorService}
}

// ListContractors handles GET /v1/contractors
func (h *RestContractorHandler) ListContractors(c *gin.Context) {
	contractors, err := h.contractorService.List(c.Request.Context(), middleware.GetActor(c), queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contractors)
}

// GetContractor handles GET /v1/contractors/:id
func (h *RestContractorHandler) GetContractor(c *gin.Context) {
	id, ok := objectIDParam(c, "id", "Contractor")
	if !ok {
		return
	}
	contractor, err := h.contractorService.Get(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contractor)
}
