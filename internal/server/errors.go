package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/directory/internal/aggregatelock"
	"github.com/smallbiznis/directory/internal/business/domain"
	"github.com/smallbiznis/directory/internal/business/validation"
	"github.com/smallbiznis/directory/internal/listingstate"
)

type ValidationError = validation.FieldError

type errorResponse struct {
	Success          bool              `json:"success"`
	Error            string            `json:"error"`
	Code             string            `json:"code,omitempty"`
	ValidationErrors []ValidationError `json:"validationErrors,omitempty"`
	Details          string            `json:"details,omitempty"`
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("rate_limited")

	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func invalidRequestError(message string) error {
	return &validation.Errors{Fields: []validation.FieldError{
		{Field: "request", Code: "invalid_request", Message: message},
	}}
}

func mapError(err error) (int, errorResponse) {
	resp := errorResponse{Success: false}
	if err == nil {
		resp.Error = "internal server error"
		resp.Code = "internal_error"
		return http.StatusInternalServerError, resp
	}

	var vErr *validation.Errors
	if errors.As(err, &vErr) && vErr != nil {
		resp.Error = "validation failed"
		resp.Code = domain.ErrValidation.Error()
		resp.ValidationErrors = vErr.Fields
		return http.StatusBadRequest, resp
	}

	resp.Details = domain.StageOf(err)

	switch {
	case errors.Is(err, domain.ErrValidation):
		resp.Error = "validation failed"
		resp.Code = domain.ErrValidation.Error()
		return http.StatusBadRequest, resp
	case errors.Is(err, domain.ErrInvalidID):
		resp.Error = "invalid business id"
		resp.Code = domain.ErrInvalidID.Error()
		return http.StatusBadRequest, resp
	case errors.Is(err, domain.ErrAuthenticationRequired),
		errors.Is(err, ErrUnauthorized):
		resp.Error = "authentication required"
		resp.Code = domain.ErrAuthenticationRequired.Error()
		return http.StatusUnauthorized, resp
	case errors.Is(err, domain.ErrPermissionDenied),
		errors.Is(err, ErrForbidden):
		resp.Error = permissionMessage(err)
		resp.Code = domain.ErrPermissionDenied.Error()
		return http.StatusForbidden, resp
	case errors.Is(err, domain.ErrNotFound):
		resp.Error = "business not found"
		resp.Code = domain.ErrNotFound.Error()
		return http.StatusNotFound, resp
	case errors.Is(err, domain.ErrUnsupportedFormat):
		resp.Error = "unsupported image format"
		resp.Code = domain.ErrUnsupportedFormat.Error()
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, domain.ErrConcurrentUpdate),
		errors.Is(err, aggregatelock.ErrBusy):
		resp.Error = "business is being updated, retry later"
		resp.Code = domain.ErrConcurrentUpdate.Error()
		return http.StatusConflict, resp
	case errors.Is(err, listingstate.ErrInvalidTransition):
		resp.Error = "listing cannot move to the requested state"
		resp.Code = listingstate.ErrInvalidTransition.Error()
		return http.StatusConflict, resp
	case errors.Is(err, ErrRateLimited):
		resp.Error = "too many profile writes, retry later"
		resp.Code = ErrRateLimited.Error()
		return http.StatusTooManyRequests, resp
	case errors.Is(err, ErrServiceUnavailable):
		resp.Error = "service unavailable"
		resp.Code = ErrServiceUnavailable.Error()
		return http.StatusServiceUnavailable, resp
	case errors.Is(err, domain.ErrStorage):
		resp.Error = "image storage failed"
		resp.Code = domain.ErrStorage.Error()
		return http.StatusBadGateway, resp
	case errors.Is(err, domain.ErrDatabase):
		resp.Error = "failed to save business"
		resp.Code = domain.ErrDatabase.Error()
		return http.StatusInternalServerError, resp
	default:
		resp.Error = "internal server error"
		resp.Code = "internal_error"
		return http.StatusInternalServerError, resp
	}
}

// permissionMessage keeps the storage hint for bucket permission failures.
func permissionMessage(err error) string {
	if domain.StageOf(err) == domain.StageImages {
		return "image storage rejected the upload: check bucket write access"
	}
	return "you do not own this business"
}

func classifyErrorForLog(err error) (string, string) {
	_, resp := mapError(err)
	errorType := resp.Code
	if resp.Details != "" {
		return errorType, resp.Details
	}
	return errorType, ""
}
