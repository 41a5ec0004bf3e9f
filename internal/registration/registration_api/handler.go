package registration_api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/registration/db"
	"ms-checkin/internal/resolver"
	"ms-checkin/internal/utils"
)

// Handler covers registration intake and read access. It writes roster fields
// only; the check_ins map belongs to the check-in state machine.
type Handler struct {
	DB     *db.DB
	Logger *logger.Logger
}

type createRequest struct {
	Name                string            `json:"name"`
	Email               string            `json:"email"`
	Phone               string            `json:"phone"`
	Church              string            `json:"church"`
	AdditionalAttendees []models.Attendee `json:"additional_attendees"`
	Status              string            `json:"status,omitempty"`
}

func (h *Handler) CreateRegistration(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", "InvalidInput"))
		return
	}
	if req.Name == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("primary attendee name is required", "InvalidInput"))
		return
	}

	status := req.Status
	if status == "" {
		status = models.StatusPendingPayment
	}

	now := time.Now()
	shortCode := utils.GenerateShortCode()
	reg := &models.Registration{
		ID:                  utils.GenerateRegistrationID(shortCode, now),
		ShortCode:           shortCode,
		CodeSuffix:          utils.CodeSuffix(shortCode),
		Status:              status,
		Name:                req.Name,
		Email:               req.Email,
		Phone:               req.Phone,
		Church:              req.Church,
		AdditionalAttendees: req.AdditionalAttendees,
		CheckIns:            map[int]models.CheckInRecord{},
		CreatedAt:           now,
	}

	if err := h.DB.CreateRegistration(r.Context(), reg); err != nil {
		h.Logger.Error("REGISTRATION", err.Error())
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("failed to create registration", "StoreUnavailable"))
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("registration created", reg))
}

func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "registrationID")
	reg, err := h.DB.GetRegistrationByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("registration not found", "RegistrationNotFound"))
			return
		}
		h.Logger.Error("REGISTRATION", err.Error())
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("store unavailable", "StoreUnavailable"))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("registration", reg))
}

// Badge renders the attendee's QR badge as a PNG.
func (h *Handler) Badge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "registrationID")
	reg, err := h.DB.GetRegistrationByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("registration not found", "RegistrationNotFound"))
			return
		}
		h.Logger.Error("REGISTRATION", err.Error())
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("store unavailable", "StoreUnavailable"))
		return
	}

	attendeeIndex := 0
	if raw := r.URL.Query().Get("attendee"); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 0 || idx >= reg.AttendeeCount() {
			utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid attendee index", "InvalidAttendeeIndex"))
			return
		}
		attendeeIndex = idx
	}

	png, err := resolver.GenerateBadgePNG(reg.ShortCode, attendeeIndex)
	if err != nil {
		h.Logger.Error("REGISTRATION", err.Error())
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("failed to render badge", "Internal"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
