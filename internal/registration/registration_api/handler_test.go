package registration_api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/registration/db"
)

func setupTestHandler(t *testing.T) (*Handler, *db.DB) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.Registration)(nil)))

	store := &db.DB{Bun: bunDB}
	return &Handler{DB: store, Logger: &logger.Logger{}}, store
}

func newTestRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/api/registrations", h.CreateRegistration)
	r.Get("/api/registrations/{registrationID}", h.GetRegistration)
	r.Get("/api/registrations/{registrationID}/badge", h.Badge)
	return r
}

func TestCreateRegistrationHandler(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		handler, store := setupTestHandler(t)
		router := newTestRouter(handler)

		body, _ := json.Marshal(map[string]interface{}{
			"name":   "Ana Souza",
			"email":  "ana@example.com",
			"phone":  "11999990001",
			"church": "Igreja Central",
			"additional_attendees": []map[string]string{
				{"name": "Pedro Souza"},
			},
		})
		req := httptest.NewRequest("POST", "/api/registrations", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusCreated, w.Code)

		var env struct {
			Success bool                `json:"success"`
			Data    models.Registration `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
		assert.True(t, env.Success)
		assert.Len(t, env.Data.ShortCode, 6)
		assert.Contains(t, env.Data.ID, "REG-")
		assert.Equal(t, models.StatusPendingPayment, env.Data.Status)
		assert.Equal(t, 2, env.Data.AttendeeCount())

		stored, err := store.GetRegistrationByID(context.Background(), env.Data.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ana Souza", stored.Name)
	})

	t.Run("missing name", func(t *testing.T) {
		handler, _ := setupTestHandler(t)
		router := newTestRouter(handler)

		req := httptest.NewRequest("POST", "/api/registrations", bytes.NewBufferString(`{"email":"x@example.com"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		handler, _ := setupTestHandler(t)
		router := newTestRouter(handler)

		req := httptest.NewRequest("POST", "/api/registrations", bytes.NewBufferString(`{"name":`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetRegistrationHandler(t *testing.T) {
	handler, store := setupTestHandler(t)
	router := newTestRouter(handler)

	reg := &models.Registration{
		ID:        "REG-2026-A7K3",
		ShortCode: "A7K3XX",
		Status:    models.StatusConfirmed,
		Name:      "Ana Souza",
		CheckIns:  map[int]models.CheckInRecord{},
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateRegistration(context.Background(), reg))

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/registrations/REG-2026-A7K3", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Ana Souza")
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/registrations/REG-2026-NOPE", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestBadgeHandler(t *testing.T) {
	handler, store := setupTestHandler(t)
	router := newTestRouter(handler)

	reg := &models.Registration{
		ID:                  "REG-2026-A7K3",
		ShortCode:           "A7K3XX",
		Status:              models.StatusConfirmed,
		Name:                "Ana Souza",
		AdditionalAttendees: []models.Attendee{{Name: "Pedro Souza"}},
		CheckIns:            map[int]models.CheckInRecord{},
		CreatedAt:           time.Now(),
	}
	require.NoError(t, store.CreateRegistration(context.Background(), reg))

	t.Run("renders a PNG", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/registrations/REG-2026-A7K3/badge?attendee=1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, w.Body.Bytes()[:4])
	})

	t.Run("attendee index out of range", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/registrations/REG-2026-A7K3/badge?attendee=5", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
