package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

// ErrNotFound is returned when no registration matches a point lookup.
var ErrNotFound = errors.New("registration not found")

// ErrVersionConflict is returned when a conditional write lost the race: the
// row's version moved between read and write. Callers re-read and retry.
var ErrVersionConflict = errors.New("registration version conflict")

type DB struct {
	Bun *bun.DB
}

// ---------------- POINT LOOKUPS ----------------

func (d *DB) GetRegistrationByID(ctx context.Context, id string) (*models.Registration, error) {
	var reg models.Registration
	err := d.Bun.NewSelect().
		Model(&reg).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// ---------------- RESOLUTION LOOKUPS ----------------
// Each returns an empty slice (not an error) when nothing matches, so the
// resolver can fall through to the next strategy.

func (d *DB) ListByShortCode(ctx context.Context, code, status string) ([]models.Registration, error) {
	return d.listWhere(ctx, status, "short_code = ?", code)
}

func (d *DB) ListByCodeSuffix(ctx context.Context, suffix, status string) ([]models.Registration, error) {
	return d.listWhere(ctx, status, "code_suffix = ?", suffix)
}

func (d *DB) ListByEmail(ctx context.Context, email, status string) ([]models.Registration, error) {
	return d.listWhere(ctx, status, "lower(email) = ?", email)
}

func (d *DB) ListByPhone(ctx context.Context, phone, status string) ([]models.Registration, error) {
	return d.listWhere(ctx, status, "phone = ?", phone)
}

// ListRecent returns the newest registrations up to limit, the bounded window
// the substring fallback scans.
func (d *DB) ListRecent(ctx context.Context, limit int, status string) ([]models.Registration, error) {
	var regs []models.Registration
	q := d.Bun.NewSelect().
		Model(&regs).
		Order("created_at DESC").
		Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return regs, nil
}

func (d *DB) ListByStatus(ctx context.Context, status string) ([]models.Registration, error) {
	return d.listWhere(ctx, status, "1 = 1")
}

func (d *DB) listWhere(ctx context.Context, status, where string, args ...interface{}) ([]models.Registration, error) {
	var regs []models.Registration
	q := d.Bun.NewSelect().
		Model(&regs).
		Where(where, args...).
		Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return regs, nil
}

// ---------------- MUTATIONS ----------------

func (d *DB) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now()
	}
	if reg.CheckIns == nil {
		reg.CheckIns = map[int]models.CheckInRecord{}
	}
	_, err := d.Bun.NewInsert().Model(reg).Exec(ctx)
	return err
}

// UpdateRoster updates the attendee roster and status fields. It deliberately
// never touches check_ins; that column is owned by ApplyCheckIns.
func (d *DB) UpdateRoster(ctx context.Context, reg *models.Registration) error {
	reg.UpdatedAt = time.Now()
	res, err := d.Bun.NewUpdate().
		Model(reg).
		Column("status", "name", "email", "phone", "church", "additional_attendees", "updated_at").
		Set("version = version + 1").
		Where("id = ?", reg.ID).
		Where("version = ?", reg.Version).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	reg.Version++
	return nil
}

// ApplyCheckIns writes the registration's check_ins map and its recomputed
// mirror fields, conditioned on the version the caller read. Zero rows affected
// means another writer got there first and the caller must re-read.
func (d *DB) ApplyCheckIns(ctx context.Context, reg *models.Registration) error {
	reg.RecomputeMirror()
	reg.UpdatedAt = time.Now()
	res, err := d.Bun.NewUpdate().
		Model(reg).
		Column("check_ins", "checked_in", "checked_in_at", "updated_at").
		Set("version = version + 1").
		Where("id = ?", reg.ID).
		Where("version = ?", reg.Version).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	reg.Version++
	return nil
}
