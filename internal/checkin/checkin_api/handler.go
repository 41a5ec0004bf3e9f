package checkin_api

import (
	"encoding/json"
	"errors"
	"net/http"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/checkin"
	"ms-checkin/internal/feed"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/resolver"
	"ms-checkin/internal/stats"
	"ms-checkin/internal/utils"
)

type Handler struct {
	Service    *checkin.Service
	Resolver   *resolver.Resolver
	Aggregator *stats.Aggregator
	Feed       *feed.Feed
	Logger     *logger.Logger
}

type resolveRequest struct {
	Input  string `json:"input"`
	Status string `json:"status,omitempty"`
}

type resolveResponse struct {
	Results   []models.Registration `json:"results"`
	Truncated bool                  `json:"truncated"`
}

// Resolve turns a typed search term or raw scanner text into candidate
// registrations.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", "InvalidInput"))
		return
	}

	result, err := h.Resolver.Resolve(r.Context(), req.Input, req.Status)
	if err != nil {
		h.Logger.Error("RESOLVE", err.Error())
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("search is unavailable, retry shortly", "ResolutionUnavailable"))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("resolved", resolveResponse{
		Results:   result.Registrations,
		Truncated: result.Truncated,
	}))
}

type scanRequest struct {
	Payload string `json:"payload"`
	Status  string `json:"status,omitempty"`
}

type scanResponse struct {
	ShortCode     string                `json:"short_code"`
	AttendeeIndex *int                  `json:"attendee_index,omitempty"`
	Results       []models.Registration `json:"results"`
	Truncated     bool                  `json:"truncated"`
}

// ResolveQR decodes a scanned badge payload and resolves it. Malformed
// payloads are rejected with an explicit flag, never silently dropped.
func (h *Handler) ResolveQR(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", "InvalidInput"))
		return
	}

	payload, result, err := h.Resolver.ResolveQR(r.Context(), req.Payload, req.Status)
	if err != nil {
		if errors.Is(err, resolver.ErrInvalidInput) {
			utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), "InvalidInput"))
			return
		}
		h.Logger.Error("RESOLVE", err.Error())
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("search is unavailable, retry shortly", "ResolutionUnavailable"))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("scanned", scanResponse{
		ShortCode:     payload.ShortCode,
		AttendeeIndex: payload.AttendeeIndex,
		Results:       result.Registrations,
		Truncated:     result.Truncated,
	}))
}

// CheckIn performs the state transition for one attendee or the whole party.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req models.CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", "InvalidInput"))
		return
	}
	req.ActorID, req.ActorName = auth.ActorFromContext(r.Context())

	result, err := h.Service.CheckIn(r.Context(), req)
	if err != nil {
		h.writeCheckInError(w, result, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("checked in", result))
}

func (h *Handler) writeCheckInError(w http.ResponseWriter, result *models.CheckInResult, err error) {
	code := checkin.ErrorCode(err)
	if result == nil {
		result = &models.CheckInResult{Success: false, ErrorCode: code}
	}
	result.ErrorCode = code

	status := http.StatusInternalServerError
	message := err.Error()
	switch code {
	case "RegistrationNotFound":
		status = http.StatusNotFound
	case "RegistrationNotConfirmed", "InvalidAttendeeIndex":
		status = http.StatusUnprocessableEntity
	case "AttendeeAlreadyCheckedIn", "AllAlreadyCheckedIn", "ConcurrentModification":
		status = http.StatusConflict
	case "StoreUnavailable":
		status = http.StatusServiceUnavailable
	case "UnknownOutcome":
		// The write may have landed; the kiosk must re-resolve, not resubmit.
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		h.Logger.Error("CHECKIN", message)
	}

	resp := utils.ErrorResponse(message, code)
	resp.Data = result
	utils.WriteJSON(w, status, resp)
}

// Stats returns the aggregator's current snapshot.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("stats", h.Aggregator.Snapshot()))
}

// Reconcile triggers an on-demand full recompute of the counters.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if err := h.Aggregator.Reconcile(r.Context()); err != nil {
		h.Logger.Error("STATS", err.Error())
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("reconciliation failed", "StoreUnavailable"))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("reconciled", h.Aggregator.Snapshot()))
}

// RecentEvents returns the feed's most recent check-ins, newest first.
func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("recent check-ins", h.Feed.Recent()))
}
