package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/api/middleware"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/services"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/workflow"
)

// RestPropertyHandler serves the property workflow endpoints.
type RestPropertyHandler struct {
	propertyService   services.IPropertyService
	completionService services.ICompletionService
}

// NewRestPropertyHandler creates a new RestPropertyHandler.
func NewRestPropertyHandler(propertyService services.IPropertyService, completionService services.ICompletionService) *RestPropertyHandler {
	return &RestPropertyHandler{
		propertyService:   propertyService,
		completionService: completionService,
	}
}

// PropertyView is a property together with the actions the caller may perform on it.
type PropertyView struct {
	*models.Property
	AllowedActions []workflow.Action `json:"allowed_actions"`
}

func viewOf(actor models.Actor, p *models.Property) PropertyView {
	return PropertyView{Property: p, AllowedActions: workflow.ActionsFor(actor, p)}
}

type transitionRequest struct {
	Action           string   `json:"action" binding:"required"`
	EvaluationReport string   `json:"evaluation_report"`
	Rating           *float64 `json:"rating"`
}

type transitionResponse struct {
	Status   models.PropertyStatus `json:"status"`
	Property PropertyView          `json:"property"`
}

// ListProperties handles GET /v1/properties
func (h *RestPropertyHandler) ListProperties(c *gin.Context) {
	actor := middleware.GetActor(c)
	status := models.PropertyStatus(c.Query("status"))
	properties, err := h.propertyService.List(c.Request.Context(), actor, status, queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]PropertyView, 0, len(properties))
	for i := range properties {
		views = append(views, viewOf(actor, &properties[i]))
	}
	c.JSON(http.StatusOK, views)
}

// CreateProperty handles POST /v1/properties
func (h *RestPropertyHandler) CreateProperty(c *gin.Context) {
	var req services.CreatePropertyInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	actor := middleware.GetActor(c)
	p, err := h.propertyService.Create(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(actor, p))
}

// GetProperty handles GET /v1/properties/:id
func (h *RestPropertyHandler) GetProperty(c *gin.Context) {
	id, ok := objectIDParam(c, "id", "Property")
	if !ok {
		return
	}
	actor := middleware.GetActor(c)
	p, err := h.propertyService.Get(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(actor, p))
}

// AddImages handles POST /v1/properties/:id/images
func (h *RestPropertyHandler) AddImages(c *gin.Context) {
	id, ok := objectIDParam(c, "id", "Property")
	if !ok {
		return
	}
	form, ok := multipartForm(c)
	if !ok {
		return
	}
	uploads, err := readUploads(form.File["images"])
	if err != nil {
		respondError(c, err)
		return
	}
	actor := middleware.GetActor(c)
	p, err := h.propertyService.AddImages(c.Request.Context(), actor, id, uploads)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(actor, p))
}

// Transition handles POST /v1/properties/:id/transition
func (h *RestPropertyHandler) Transition(c *gin.Context) {
	id, ok := objectIDParam(c, "id", "Property")
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	action, err := workflow.ParseAction(req.Action)
	if err != nil {
		respondError(c, err)
		return
	}
	actor := middleware.GetActor(c)
	p, err := h.propertyService.Transition(c.Request.Context(), actor, id, action, services.TransitionInput{
		EvaluationReport: req.EvaluationReport,
		Rating:           req.Rating,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transitionResponse{Status: p.Status, Property: viewOf(actor, p)})
}

// MarkCompleted handles POST /v1/properties/:id/mark_completed
func (h *RestPropertyHandler) MarkCompleted(c *gin.Context) {
	id, ok := objectIDParam(c, "id", "Property")
	if !ok {
		return
	}
	form, ok := multipartForm(c)
	if !ok {
		return
	}
	uploads, err := readUploads(form.File["images"])
	if err != nil {
		respondError(c, err)
		return
	}
	in := services.CompleteInput{
		Images:       uploads,
		Descriptions: form.Value["descriptions"],
	}
	if notes := form.Value["note"]; len(notes) > 0 {
		in.Note = notes[0]
	}

	actor := middleware.GetActor(c)
	p, images, err := h.completionService.Complete(c.Request.Context(), actor, id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            p.Status,
		"property":          viewOf(actor, p),
		"completion_images": images,
	})
}

// ListCompletionImages handles GET /v1/properties/:id/completion_images
func (h *RestPropertyHandler) ListCompletionImages(c *gin.Context) {
	id, ok := objectIDParam(c, "id", "Property")
	if !ok {
		return
	}
	images, err := h.completionService.ListImages(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, images)
}

// History handles GET /v1/properties/:id/history
func (h *RestPropertyHandler) History(c *gin.Context) {
	id, ok := objectIDParam(c, "id", "Property")
	if !ok {
		return
	}
	records, err := h.propertyService.History(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// multipartForm parses the request body. A body that is not multipart yields an empty
// form so the services report the missing fields.
func multipartForm(c *gin.Context) (*multipart.Form, bool) {
	form, err := c.MultipartForm()
	if errors.Is(err, http.ErrNotMultipart) {
		return &multipart.Form{Value: map[string][]string{}, File: map[string][]*multipart.FileHeader{}}, true
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid multipart body"})
		return nil, false
	}
	return form, true
}
