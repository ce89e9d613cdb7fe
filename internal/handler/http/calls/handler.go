package calls

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"callfeed-backend/internal/domain"
	"callfeed-backend/internal/service/calls"
	"callfeed-backend/internal/service/history"
	"callfeed-backend/pkg/pagination"
	"callfeed-backend/pkg/response"
)

// Handler handles call record HTTP requests
type Handler struct {
	callsService *calls.Service
	loader       *history.Loader
	deriver      *history.Deriver
}

// NewHandler creates a new calls handler
func NewHandler(callsService *calls.Service, loader *history.Loader, deriver *history.Deriver) *Handler {
	return &Handler{
		callsService: callsService,
		loader:       loader,
		deriver:      deriver,
	}
}

// StartCallRequest represents a call start request
type StartCallRequest struct {
	CallID         uint64 `json:"call_id" binding:"required"`
	ConversationID int64  `json:"conversation_id" binding:"required"`
	Direction      string `json:"direction" binding:"required,oneof=incoming outgoing"`
	Medium         string `json:"medium" binding:"required,oneof=audio video"`
	Category       string `json:"category" binding:"required,oneof=individual group"`
}

// StartCall records the beginning of a call
// POST /v1/calls
func (h *Handler) StartCall(c *gin.Context) {
	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	rec, err := h.callsService.StartCall(c.Request.Context(), &calls.StartCallInput{
		CallID:         req.CallID,
		ConversationID: req.ConversationID,
		Direction:      domain.CallDirection(req.Direction),
		Medium:         domain.CallMedium(req.Medium),
		Category:       domain.CallCategory(req.Category),
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, rec)
}

// AcceptCall marks a call accepted
// POST /v1/calls/:conversation_id/:call_id/accept
func (h *Handler) AcceptCall(c *gin.Context) {
	h.transition(c, h.callsService.AcceptCall)
}

// DeclineCall marks a call declined
// POST /v1/calls/:conversation_id/:call_id/decline
func (h *Handler) DeclineCall(c *gin.Context) {
	h.transition(c, h.callsService.DeclineCall)
}

// MarkMissed marks a call missed
// POST /v1/calls/:conversation_id/:call_id/missed
func (h *Handler) MarkMissed(c *gin.Context) {
	h.transition(c, h.callsService.MarkMissed)
}

// EndCall marks a call ended and lowers any group liveness flag
// POST /v1/calls/:conversation_id/:call_id/end
func (h *Handler) EndCall(c *gin.Context) {
	h.transition(c, h.callsService.EndCall)
}

// DeleteCall soft-deletes a call record
// DELETE /v1/calls/:conversation_id/:call_id
func (h *Handler) DeleteCall(c *gin.Context) {
	h.transition(c, h.callsService.DeleteCall)
}

// SetActiveCallRequest represents a local call-state transition
type SetActiveCallRequest struct {
	OldCallID *uint64 `json:"old_call_id"`
	NewCallID *uint64 `json:"new_call_id"`
}

// SetActiveCall publishes a call-state-changed event
// POST /v1/calls/active
func (h *Handler) SetActiveCall(c *gin.Context) {
	var req SetActiveCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if err := h.callsService.SetActiveCall(c.Request.Context(), req.OldCallID, req.NewCallID); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

// HistoryPageResponse is one stateless page of derived history rows
type HistoryPageResponse struct {
	Direction string            `json:"direction"`
	Rows      []history.ViewRow `json:"rows"`
}

// GetHistoryPage loads one derived page of call history. Query parameters:
// direction (older|newer), watermark (ms timestamp), page_size,
// missed_only, search, active_call_id.
// GET /v1/calls/history
func (h *Handler) GetHistoryPage(c *gin.Context) {
	params, err := pagination.ParsePageParams(
		c.Query("direction"),
		c.Query("watermark"),
		c.Query("page_size"),
	)
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	filter := history.Filter{
		MissedOnly: c.Query("missed_only") == "true",
		SearchTerm: c.Query("search"),
	}

	ambient := history.Ambient{}
	if raw := c.Query("active_call_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			response.ValidationError(c, "Invalid active_call_id")
			return
		}
		ambient.ActiveCallID = &id
	}

	records, err := h.loader.LoadPage(c.Request.Context(), filter, history.PageRequest{
		Direction: history.PageDirection(params.Direction),
		Watermark: params.Watermark,
		PageSize:  params.PageSize,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	rows := make([]history.ViewRow, 0, len(records))
	for i := range records {
		row, err := h.deriver.Derive(c.Request.Context(), &records[i], ambient)
		if err != nil {
			response.AppError(c, err)
			return
		}
		rows = append(rows, *row)
	}

	response.Success(c, http.StatusOK, HistoryPageResponse{
		Direction: params.Direction,
		Rows:      rows,
	})
}

// GetRecord returns one call record by composite key
// GET /v1/calls/:conversation_id/:call_id
func (h *Handler) GetRecord(c *gin.Context) {
	key, ok := parseKey(c)
	if !ok {
		return
	}

	rec, err := h.loader.GetRecord(c.Request.Context(), key)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, rec)
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, key domain.CallRecordKey) error) {
	key, ok := parseKey(c)
	if !ok {
		return
	}

	if err := fn(c.Request.Context(), key); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

func parseKey(c *gin.Context) (domain.CallRecordKey, bool) {
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return domain.CallRecordKey{}, false
	}

	callID, err := strconv.ParseUint(c.Param("call_id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return domain.CallRecordKey{}, false
	}

	return domain.CallRecordKey{CallID: callID, ConversationID: conversationID}, true
}
