package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	regdb "ms-checkin/internal/registration/db"
)

// ErrInvalidInput flags a malformed QR payload or search term.
var ErrInvalidInput = errors.New("invalid input")

// ErrResolutionUnavailable means the store could not be searched. It is
// distinct from an empty result so kiosks can tell "not found" from
// "couldn't look".
var ErrResolutionUnavailable = errors.New("resolution unavailable")

const (
	shortCodeLen  = 6
	codeSuffixLen = 4

	// The substring fallback scans at most this many recent registrations and
	// stops adding candidates past the result cap. Very old records are
	// unreachable by free text on purpose; Truncated tells the caller recall
	// was sacrificed.
	fallbackWindow    = 500
	fallbackResultCap = 20
	fallbackMinLen    = 2
	fallbackMaxLen    = 10
)

var registrationIDRe = regexp.MustCompile(`^REG-[0-9]{4}-[A-Z0-9]{4}$`)

// DBLayer is the slice of the registration store the resolver needs. All
// lookups are equality probes on individually indexed columns except
// ListRecent, which feeds the bounded fallback scan.
type DBLayer interface {
	ListByShortCode(ctx context.Context, code, status string) ([]models.Registration, error)
	ListByCodeSuffix(ctx context.Context, suffix, status string) ([]models.Registration, error)
	ListByEmail(ctx context.Context, email, status string) ([]models.Registration, error)
	ListByPhone(ctx context.Context, phone, status string) ([]models.Registration, error)
	GetRegistrationByID(ctx context.Context, id string) (*models.Registration, error)
	ListRecent(ctx context.Context, limit int, status string) ([]models.Registration, error)
}

type Resolver struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewResolver(db DBLayer, log *logger.Logger) *Resolver {
	return &Resolver{DB: db, Logger: log}
}

// Result is what resolution hands back: candidates ordered by descending
// confidence (then recency) plus whether the fallback scan hit its window cap.
type Result struct {
	Registrations []models.Registration
	Truncated     bool
}

// Resolve runs the fallback chain over a raw scanner or search input. The
// strategies are issued sequentially so each can short-circuit the rest;
// candidates are deduplicated by registration ID and sorted newest first.
// Empty input yields an empty result, not an error.
func (r *Resolver) Resolve(ctx context.Context, rawInput, statusFilter string) (*Result, error) {
	input := strings.TrimSpace(rawInput)
	if input == "" {
		return &Result{Registrations: []models.Registration{}}, nil
	}

	seen := map[string]models.Registration{}
	add := func(regs []models.Registration) {
		for _, reg := range regs {
			if _, dup := seen[reg.ID]; !dup {
				seen[reg.ID] = reg
			}
		}
	}

	// 1. Exact short code.
	if upper := strings.ToUpper(input); len(upper) == shortCodeLen && isAlphanumeric(upper) {
		regs, err := r.DB.ListByShortCode(ctx, upper, statusFilter)
		if err != nil {
			return nil, fmt.Errorf("%w: short code lookup: %v", ErrResolutionUnavailable, err)
		}
		if len(regs) > 0 {
			return r.finish(input, add, seen, regs, false)
		}
	}

	// 2. Short-code suffix. Several registrations sharing a suffix is expected;
	// the operator disambiguates.
	if upper := strings.ToUpper(input); len(upper) == codeSuffixLen && isAlphanumeric(upper) {
		regs, err := r.DB.ListByCodeSuffix(ctx, upper, statusFilter)
		if err != nil {
			return nil, fmt.Errorf("%w: code suffix lookup: %v", ErrResolutionUnavailable, err)
		}
		if len(regs) > 0 {
			return r.finish(input, add, seen, regs, false)
		}
	}

	// 3. Exact email.
	if strings.Contains(input, "@") {
		regs, err := r.DB.ListByEmail(ctx, strings.ToLower(input), statusFilter)
		if err != nil {
			return nil, fmt.Errorf("%w: email lookup: %v", ErrResolutionUnavailable, err)
		}
		if len(regs) > 0 {
			return r.finish(input, add, seen, regs, false)
		}
	}

	// 4. Phone, gated on an accepted shape after normalization. International
	// numbers are probed with and without the plus, since intake stores either.
	if normalized := NormalizePhone(input); LooksLikePhone(normalized) {
		probes := []string{normalized}
		if strings.HasPrefix(normalized, "+") {
			probes = append(probes, strings.TrimPrefix(normalized, "+"))
		}
		for _, probe := range probes {
			regs, err := r.DB.ListByPhone(ctx, probe, statusFilter)
			if err != nil {
				return nil, fmt.Errorf("%w: phone lookup: %v", ErrResolutionUnavailable, err)
			}
			if len(regs) > 0 {
				return r.finish(input, add, seen, regs, false)
			}
		}
	}

	// 5. Full registration ID, raw or uppercased into the template.
	if id := strings.ToUpper(input); registrationIDRe.MatchString(id) {
		reg, err := r.DB.GetRegistrationByID(ctx, id)
		if err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("%w: id lookup: %v", ErrResolutionUnavailable, err)
		}
		if reg != nil && (statusFilter == "" || reg.Status == statusFilter) {
			return r.finish(input, add, seen, []models.Registration{*reg}, false)
		}
	}

	// 6. Bounded substring fallback.
	truncated := false
	if len(seen) < fallbackResultCap && len(input) >= fallbackMinLen && len(input) <= fallbackMaxLen {
		window, err := r.DB.ListRecent(ctx, fallbackWindow, statusFilter)
		if err != nil {
			return nil, fmt.Errorf("%w: fallback scan: %v", ErrResolutionUnavailable, err)
		}
		truncated = len(window) == fallbackWindow

		term := strings.ToLower(input)
		matches := make([]models.Registration, 0, fallbackResultCap)
		for _, reg := range window {
			if len(seen)+len(matches) >= fallbackResultCap {
				truncated = true
				break
			}
			if registrationMatchesTerm(&reg, term) {
				matches = append(matches, reg)
			}
		}
		add(matches)
	}

	return r.finish(input, add, seen, nil, truncated)
}

// ResolveQR decodes a scanned badge payload and resolves its short code.
func (r *Resolver) ResolveQR(ctx context.Context, rawPayload, statusFilter string) (*QRPayload, *Result, error) {
	payload, err := ParseQRPayload(rawPayload)
	if err != nil {
		return nil, nil, err
	}
	res, err := r.Resolve(ctx, payload.ShortCode, statusFilter)
	if err != nil {
		return payload, nil, err
	}
	return payload, res, nil
}

func (r *Resolver) finish(input string, add func([]models.Registration), seen map[string]models.Registration, extra []models.Registration, truncated bool) (*Result, error) {
	add(extra)

	out := make([]models.Registration, 0, len(seen))
	for _, reg := range seen {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if r.Logger != nil {
		r.Logger.LogResolve(input, len(out), truncated)
	}
	return &Result{Registrations: out, Truncated: truncated}, nil
}

func registrationMatchesTerm(reg *models.Registration, term string) bool {
	if strings.Contains(strings.ToLower(reg.Name), term) ||
		strings.Contains(strings.ToLower(reg.Email), term) ||
		strings.Contains(strings.ToLower(reg.ShortCode), term) ||
		strings.Contains(strings.ToLower(reg.ID), term) {
		return true
	}
	for _, att := range reg.AdditionalAttendees {
		if strings.Contains(strings.ToLower(att.Name), term) {
			return true
		}
	}
	return false
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		default:
			return false
		}
	}
	return true
}

func isNotFound(err error) bool {
	return errors.Is(err, regdb.ErrNotFound)
}
