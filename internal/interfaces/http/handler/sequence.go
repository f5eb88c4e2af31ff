package handler

import (
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"

	appsequence "github.com/quotedeck/backend/internal/application/sequence"
)

// SequenceHandler tracks job number sequences per department and year.
type SequenceHandler struct {
	BaseHandler
	sequences *appsequence.Service
	logger    *zap.Logger
}

// NewSequenceHandler creates a new SequenceHandler
func NewSequenceHandler(sequences *appsequence.Service, logger *zap.Logger) *SequenceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SequenceHandler{sequences: sequences, logger: logger}
}

type recordSequenceRequest struct {
	Department string `json:"department" binding:"required"`
	Year       int    `json:"year" binding:"required,min=2000,max=2100"`
	Value      int    `json:"value" binding:"required,min=1"`
}

type recordSequenceResponse struct {
	Department string `json:"department"`
	Year       int    `json:"year"`
	Value      int    `json:"value"`
	Warning    bool   `json:"warning"`
}

type nextJobNumberRequest struct {
	Department string `json:"department" binding:"required"`
	Year       int    `json:"year" binding:"required,min=2000,max=2100"`
}

type nextJobNumberResponse struct {
	JobNumber string `json:"jobNumber"`
}

// Record advances the sequence for a department/year pair.
// POST /api/v1/sequences
func (h *SequenceHandler) Record(c *gin.Context) {
	var req recordSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	warning, err := h.sequences.RecordSequence(c.Request.Context(), req.Department, req.Year, req.Value)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, recordSequenceResponse{
		Department: req.Department,
		Year:       req.Year,
		Value:      req.Value,
		Warning:    warning,
	})
}

// Next allocates the next job number for a department/year pair.
// POST /api/v1/sequences/next
func (h *SequenceHandler) Next(c *gin.Context) {
	var req nextJobNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	jobNumber, err := h.sequences.NextJobNumber(c.Request.Context(), req.Department, req.Year)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, nextJobNumberResponse{JobNumber: jobNumber})
}
