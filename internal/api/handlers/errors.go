package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"battery-sizer/internal/api/models"
	"battery-sizer/internal/data"
	"battery-sizer/internal/model"
)

// Error codes returned in ErrorDetail.Code.
const (
	CodeShapeMismatch    = "SHAPE_MISMATCH"
	CodeInvalidParams    = "INVALID_PARAMS"
	CodeOptimization     = "OPTIMIZATION_FAILED"
	CodeTimedOut         = "OPTIMIZATION_TIMED_OUT"
	CodeSolverUnavail    = "SOLVER_UNAVAILABLE"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeProfileFetch     = "PROFILE_FETCH_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// requestError marks problems with the request itself (bad JSON, unknown
// preset, missing profiles).
type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return &requestError{err: err} }

// classify maps an error to its API code and HTTP status.
func classify(err error) (string, int) {
	var reqErr *requestError
	var fetchErr *data.FetchError
	switch {
	case errors.Is(err, model.ErrShapeMismatch):
		return CodeShapeMismatch, http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInvalidParams):
		return CodeInvalidParams, http.StatusBadRequest
	case errors.Is(err, model.ErrOptimizationTimedOut), errors.Is(err, context.DeadlineExceeded):
		return CodeTimedOut, http.StatusGatewayTimeout
	case errors.Is(err, model.ErrOptimizationFailed):
		return CodeOptimization, http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrSolverUnavailable):
		return CodeSolverUnavail, http.StatusServiceUnavailable
	case errors.As(err, &fetchErr):
		return CodeProfileFetch, http.StatusBadGateway
	case errors.As(err, &reqErr):
		return CodeInvalidRequest, http.StatusBadRequest
	default:
		return CodeInternal, http.StatusInternalServerError
	}
}

func errorDetail(err error) models.ErrorDetail {
	code, _ := classify(err)
	d := models.ErrorDetail{Code: code, Message: err.Error()}
	var fetchErr *data.FetchError
	if errors.As(err, &fetchErr) {
		d.Details = map[string]any{
			"status_code": fetchErr.StatusCode,
			"upstream":    fetchErr.Code,
		}
		if fetchErr.RetryAfter != "" {
			d.Details["retry_after"] = fetchErr.RetryAfter
		}
	}
	return d
}

func writeError(c *gin.Context, err error) {
	_, status := classify(err)
	_ = c.Error(err)
	c.JSON(status, models.ErrorResponse{Error: errorDetail(err)})
}

func writeCode(c *gin.Context, status int, code, msg string) {
	c.JSON(status, models.ErrorResponse{Error: models.ErrorDetail{Code: code, Message: msg}})
}
