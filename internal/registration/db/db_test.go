package db

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-checkin/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.Registration)(nil)))

	return &DB{Bun: bunDB}
}

func testRegistration(id, shortCode string, createdAt time.Time) *models.Registration {
	return &models.Registration{
		ID:         id,
		ShortCode:  shortCode,
		CodeSuffix: shortCode[len(shortCode)-4:],
		Status:     models.StatusConfirmed,
		Name:       "Maria Lima",
		Email:      "maria@example.com",
		Phone:      "11999990001",
		Church:     "Comunidade da Graça",
		CheckIns:   map[int]models.CheckInRecord{},
		CreatedAt:  createdAt,
	}
}

func TestCreateAndGetRegistration(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	reg := testRegistration("REG-2026-A7K3", "A7K3XX", time.Now())
	reg.AdditionalAttendees = []models.Attendee{{Name: "Pedro Lima"}}
	require.NoError(t, store.CreateRegistration(ctx, reg))

	got, err := store.GetRegistrationByID(ctx, "REG-2026-A7K3")
	require.NoError(t, err)
	assert.Equal(t, "A7K3XX", got.ShortCode)
	assert.Equal(t, "Maria Lima", got.Name)
	assert.Len(t, got.AdditionalAttendees, 1)
	assert.Equal(t, int64(0), got.Version)
	assert.NotNil(t, got.CheckIns)
}

func TestGetRegistrationNotFound(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.GetRegistrationByID(context.Background(), "REG-2026-NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolutionLookups(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	older := testRegistration("REG-2025-A7K3", "A7K3AA", time.Now().Add(-time.Hour))
	older.Email = "OLDER@Example.com"
	older.Phone = "11999990002"
	newer := testRegistration("REG-2026-B8M4", "B8M4AA", time.Now())
	cancelled := testRegistration("REG-2026-C9N5", "C9N5AA", time.Now())
	cancelled.Status = models.StatusCancelled
	for _, reg := range []*models.Registration{older, newer, cancelled} {
		require.NoError(t, store.CreateRegistration(ctx, reg))
	}

	byCode, err := store.ListByShortCode(ctx, "A7K3AA", "")
	require.NoError(t, err)
	require.Len(t, byCode, 1)
	assert.Equal(t, "REG-2025-A7K3", byCode[0].ID)

	bySuffix, err := store.ListByCodeSuffix(ctx, "M4AA", "")
	require.NoError(t, err)
	require.Len(t, bySuffix, 1)
	assert.Equal(t, "REG-2026-B8M4", bySuffix[0].ID)

	// Email comparison is lowercased on both sides.
	byEmail, err := store.ListByEmail(ctx, "older@example.com", "")
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, "REG-2025-A7K3", byEmail[0].ID)

	byPhone, err := store.ListByPhone(ctx, "11999990002", "")
	require.NoError(t, err)
	require.Len(t, byPhone, 1)

	// No match yields an empty slice, never an error.
	none, err := store.ListByShortCode(ctx, "ZZZZZZ", "")
	require.NoError(t, err)
	assert.Empty(t, none)

	// Status filter excludes the cancelled registration.
	confirmed, err := store.ListByShortCode(ctx, "C9N5AA", models.StatusConfirmed)
	require.NoError(t, err)
	assert.Empty(t, confirmed)
}

func TestListRecentOrdersNewestFirst(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		reg := testRegistration(
			fmt.Sprintf("REG-2026-N%03d", i),
			fmt.Sprintf("N%03dXX", i),
			base.Add(time.Duration(i)*time.Minute),
		)
		reg.Email = fmt.Sprintf("n%d@example.com", i)
		reg.Phone = fmt.Sprintf("1199999%04d", i)
		require.NoError(t, store.CreateRegistration(ctx, reg))
	}

	recent, err := store.ListRecent(ctx, 3, "")
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "REG-2026-N004", recent[0].ID)
	assert.Equal(t, "REG-2026-N003", recent[1].ID)
	assert.Equal(t, "REG-2026-N002", recent[2].ID)
}

func TestApplyCheckInsPersistsMapAndMirror(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	reg := testRegistration("REG-2026-A7K3", "A7K3XX", time.Now())
	require.NoError(t, store.CreateRegistration(ctx, reg))

	reg.CheckIns[0] = models.CheckInRecord{
		CheckedIn:   true,
		CheckedInAt: time.Now(),
		CheckedInBy: "admin-1",
		Method:      models.MethodQR,
	}
	require.NoError(t, store.ApplyCheckIns(ctx, reg))
	assert.Equal(t, int64(1), reg.Version)

	got, err := store.GetRegistrationByID(ctx, "REG-2026-A7K3")
	require.NoError(t, err)
	assert.True(t, got.CheckedIn)
	assert.False(t, got.CheckedInAt.IsZero())
	require.Contains(t, got.CheckIns, 0)
	assert.Equal(t, "admin-1", got.CheckIns[0].CheckedInBy)
	assert.Equal(t, int64(1), got.Version)
}

func TestApplyCheckInsVersionConflict(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	reg := testRegistration("REG-2026-A7K3", "A7K3XX", time.Now())
	require.NoError(t, store.CreateRegistration(ctx, reg))

	// Two readers load the same version.
	first, err := store.GetRegistrationByID(ctx, "REG-2026-A7K3")
	require.NoError(t, err)
	second, err := store.GetRegistrationByID(ctx, "REG-2026-A7K3")
	require.NoError(t, err)

	first.CheckIns = map[int]models.CheckInRecord{
		0: {CheckedIn: true, CheckedInAt: time.Now(), Method: models.MethodQR},
	}
	require.NoError(t, store.ApplyCheckIns(ctx, first))

	// The stale writer must not clobber the first write.
	second.CheckIns = map[int]models.CheckInRecord{
		0: {CheckedIn: true, CheckedInAt: time.Now(), Method: models.MethodManual},
	}
	err = store.ApplyCheckIns(ctx, second)
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := store.GetRegistrationByID(ctx, "REG-2026-A7K3")
	require.NoError(t, err)
	assert.Equal(t, models.MethodQR, got.CheckIns[0].Method)
	assert.Equal(t, int64(1), got.Version)
}

func TestUpdateRosterLeavesCheckInsAlone(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	reg := testRegistration("REG-2026-A7K3", "A7K3XX", time.Now())
	require.NoError(t, store.CreateRegistration(ctx, reg))

	reg.CheckIns[0] = models.CheckInRecord{CheckedIn: true, CheckedInAt: time.Now(), Method: models.MethodQR}
	require.NoError(t, store.ApplyCheckIns(ctx, reg))

	reg.Name = "Maria de Lima"
	reg.CheckIns = nil
	require.NoError(t, store.UpdateRoster(ctx, reg))

	got, err := store.GetRegistrationByID(ctx, "REG-2026-A7K3")
	require.NoError(t, err)
	assert.Equal(t, "Maria de Lima", got.Name)
	require.Contains(t, got.CheckIns, 0, "roster updates never touch check_ins")
	assert.Equal(t, int64(2), got.Version)
}
