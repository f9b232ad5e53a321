package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"battery-sizer/internal/store"
)

// RunsHandler serves the run history.
type RunsHandler struct {
	Store *store.Store
}

func (h *RunsHandler) available(c *gin.Context) bool {
	if h.Store == nil {
		writeCode(c, http.StatusServiceUnavailable, CodeStoreUnavailable, "run history is not configured")
		return false
	}
	return true
}

// List handles GET /api/v1/runs?limit=N
func (h *RunsHandler) List(c *gin.Context) {
	if !h.available(c) {
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			writeCode(c, http.StatusBadRequest, CodeInvalidRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	runs, err := h.Store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// Latest handles GET /api/v1/runs/latest
func (h *RunsHandler) Latest(c *gin.Context) {
	if !h.available(c) {
		return
	}
	run, err := h.Store.LatestSuccessful(c.Request.Context())
	h.respond(c, run, err)
}

// Get handles GET /api/v1/runs/:id
func (h *RunsHandler) Get(c *gin.Context) {
	if !h.available(c) {
		return
	}
	run, err := h.Store.GetRun(c.Request.Context(), c.Param("id"))
	h.respond(c, run, err)
}

func (h *RunsHandler) respond(c *gin.Context, run store.Run, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeCode(c, http.StatusNotFound, CodeNotFound, err.Error())
	case err != nil:
		writeError(c, err)
	default:
		c.JSON(http.StatusOK, run)
	}
}
