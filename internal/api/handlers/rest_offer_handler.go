package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/api/middleware"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/apperr"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/services"
)

// RestOfferHandler serves price offer negotiation.
type RestOfferHandler struct {
	offerService services.IOfferService
}

// NewRestOfferHandler creates a new RestOfferHandler.
func NewRestOfferHandler(offerService services.IOfferService) *RestOfferHandler {
	return &RestOfferHandler{offerService: offerService}
}

type submitOfferRequest struct {
	Property    string  `json:"property" binding:"required"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// ListOffers handles GET /v1/price-offers
func (h *RestOfferHandler) ListOffers(c *gin.Context) {
	filter := services.OfferListFilter{
		Status: models.OfferStatus(c.Query("status")),
		Limit:  queryLimit(c),
	}
	if raw := c.Query("property"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			respondError(c, apperr.Validation("property", "must be a valid id"))
			return
		}
		filter.Property = &id
	}
	offers, err := h.offerService.List(c.Request.Context(), middleware.GetActor(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, offers)
}

// SubmitOffer handles POST /v1/price-offers
func (h *RestOfferHandler) SubmitOffer(c *gin.Context) {
	var req submitOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	propertyID, err := primitive.ObjectIDFromHex(req.Property)
	if err != nil {
		respondError(c, apperr.Validation("property", "must be a valid id"))
		return
	}
	actor := middleware.GetActor(c)
	offer, p, err := h.offerService.Submit(c.Request.Context(), actor, propertyID, services.SubmitOfferInput{
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"offer": offer, "property": viewOf(actor, p)})
}

// GetOffer handles GET /v1/price-offers/:id
func (h *RestOfferHandler) GetOffer(c *gin.Context) {
	id, ok := objectIDParam(c, "id", "Price offer")
	if !ok {
		return
	}
	offer, err := h.offerService.Get(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

// AcceptOffer handles POST /v1/price-offers/:id/accept
func (h *RestOfferHandler) AcceptOffer(c *gin.Context) {
	id, ok := objectIDParam(c, "id", "Price offer")
	if !ok {
		return
	}
	actor := middleware.GetActor(c)
	res, err := h.offerService.Accept(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          res.Property.Status,
		"offer":           res.Offer,
		"property":        viewOf(actor, res.Property),
		"rejected_offers": res.Rejected,
	})
}

// RejectOffer handles POST /v1/price-offers/:id/reject
func (h *RestOfferHandler) RejectOffer(c *gin.Context) {
	id, ok := objectIDParam(c, "id", "Price offer")
	if !ok {
		return
	}
	actor := middleware.GetActor(c)
	offer, p, err := h.offerService.Reject(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   p.Status,
		"offer":    offer,
		"property": viewOf(actor, p),
	})
}
