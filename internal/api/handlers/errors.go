package handlers

import (
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/api/middleware"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/apperr"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/services"
)

func init() {
	// Binding errors report fields by their json names.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		apperr.RegisterJSONTagNames(v)
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusFor maps an error kind onto an HTTP status. Authorization failures of anonymous
// callers are 401, of signed-in callers 403.
func statusFor(kind apperr.Kind, anonymous bool) int {
	switch kind {
	case apperr.KindAuthorization:
		if anonymous {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind, middleware.GetActor(c).IsAnonymous())
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		log.Printf("ERROR: request %s %s %s failed: %v",
			middleware.GetRequestID(c.Request.Context()), c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(status, ErrorResponse{Error: apperr.MessageOf(err), Fields: apperr.FieldsOf(err)})
}

// respondBindError reports a body that could not be decoded or failed its binding tags.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		respondError(c, apperr.FromValidation(err))
		return
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
}

// objectIDParam parses a path parameter. Malformed ids cannot exist, so they are 404s.
func objectIDParam(c *gin.Context, name, what string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: what + " not found"})
		return primitive.NilObjectID, false
	}
	return id, true
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// readUploads loads the files of a multipart field into memory. Type and size checks
// happen in the services.
func readUploads(files []*multipart.FileHeader) ([]services.Upload, error) {
	uploads := make([]services.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, apperr.Internal(err, "failed to open upload %s", fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, apperr.Internal(err, "failed to read upload %s", fh.Filename)
		}
		uploads = append(uploads, services.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return uploads, nil
}
