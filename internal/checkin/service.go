package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	regdb "ms-checkin/internal/registration/db"
)

// DBLayer is the slice of the registration store the state machine needs. The
// check_ins map is mutated exclusively through ApplyCheckIns; no other
// component writes it.
type DBLayer interface {
	GetRegistrationByID(ctx context.Context, id string) (*models.Registration, error)
	ApplyCheckIns(ctx context.Context, reg *models.Registration) error
}

// RegistrationLocks is the advisory per-registration lock (Redis SetNX).
type RegistrationLocks interface {
	LockRegistration(ctx context.Context, registrationID, operationID string) (bool, error)
	UnlockRegistration(ctx context.Context, registrationID, operationID string) error
}

// KafkaPublisher streams check-in events to external consumers.
type KafkaPublisher interface {
	PublishCheckedIn(event models.CheckInEvent) error
}

// EventSink receives events in-process (stats aggregator, live feed).
type EventSink interface {
	Consume(event models.CheckInEvent)
}

type Service struct {
	DB         DBLayer
	Locks      RegistrationLocks
	Kafka      KafkaPublisher
	Sinks      []EventSink
	Logger     *logger.Logger
	MaxRetries int
}

func NewService(db DBLayer, locks RegistrationLocks, kafka KafkaPublisher, log *logger.Logger, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{DB: db, Locks: locks, Kafka: kafka, Logger: log, MaxRetries: maxRetries}
}

// AddSink registers an in-process consumer of check-in events.
func (s *Service) AddSink(sink EventSink) {
	s.Sinks = append(s.Sinks, sink)
}

// CheckIn performs the atomic per-attendee transition. A specific index
// transitions that attendee only; a nil index transitions every attendee not
// yet checked in as one logical operation. Exactly one of N concurrent
// requests for the same index wins; the rest observe AttendeeAlreadyCheckedIn.
func (s *Service) CheckIn(ctx context.Context, req models.CheckInRequest) (*models.CheckInResult, error) {
	if req.RegistrationID == "" {
		return nil, fmt.Errorf("%w: missing registration id", ErrRegistrationNotFound)
	}
	method := req.Method
	if method != models.MethodQR && method != models.MethodManual {
		method = models.MethodManual
	}

	opID := uuid.NewString()
	if s.Locks != nil {
		// Advisory only: losing the lock race just means more CAS conflicts
		// below, never a wrong result. Lock errors are logged and ignored.
		acquired, err := s.Locks.LockRegistration(ctx, req.RegistrationID, opID)
		if err != nil {
			s.logWarn("LOCK", fmt.Sprintf("lock %s unavailable: %v", req.RegistrationID, err))
		}
		if acquired {
			defer func() {
				if err := s.Locks.UnlockRegistration(context.Background(), req.RegistrationID, opID); err != nil {
					s.logWarn("LOCK", fmt.Sprintf("unlock %s failed: %v", req.RegistrationID, err))
				}
			}()
		}
	}

	var lastErr error
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		result, err := s.attempt(ctx, req, method)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, regdb.ErrVersionConflict) {
			// Another writer moved the row between our read and write.
			// Re-read and re-evaluate: the conflicting write may have been
			// this very index, in which case the retry observes it as
			// already checked in.
			lastErr = err
			continue
		}
		return result, err
	}
	return nil, fmt.Errorf("%w: gave up after %d attempts: %v", ErrConcurrentModification, s.MaxRetries+1, lastErr)
}

func (s *Service) attempt(ctx context.Context, req models.CheckInRequest, method string) (*models.CheckInResult, error) {
	reg, err := s.DB.GetRegistrationByID(ctx, req.RegistrationID)
	if err != nil {
		if errors.Is(err, regdb.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRegistrationNotFound, req.RegistrationID)
		}
		// Reads are side-effect free, so a failed read is plain unavailability.
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if reg.Status != models.StatusConfirmed {
		return &models.CheckInResult{
			Success:      false,
			ErrorCode:    ErrorCode(ErrRegistrationNotConfirmed),
			Registration: reg,
		}, fmt.Errorf("%w: status is %s", ErrRegistrationNotConfirmed, reg.Status)
	}

	indices, existing, err := s.targetIndices(reg, req.AttendeeIndex)
	if err != nil {
		return &models.CheckInResult{
			Success:      false,
			ErrorCode:    ErrorCode(err),
			Existing:     existing,
			Registration: reg,
		}, err
	}

	now := time.Now()
	if reg.CheckIns == nil {
		reg.CheckIns = map[int]models.CheckInRecord{}
	}
	for _, idx := range indices {
		reg.CheckIns[idx] = models.CheckInRecord{
			CheckedIn:       true,
			CheckedInAt:     now,
			CheckedInBy:     req.ActorID,
			CheckedInByName: req.ActorName,
			Method:          method,
		}
	}

	// One conditional write covers the whole group, so a group check-in is
	// never observable half-applied.
	if err := s.DB.ApplyCheckIns(ctx, reg); err != nil {
		if errors.Is(err, regdb.ErrVersionConflict) {
			return nil, err
		}
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			// The write raced the timeout; it may have landed.
			return nil, fmt.Errorf("%w: %v", ErrUnknownOutcome, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.publish(reg, indices, method, now)
	if s.Logger != nil {
		s.Logger.LogCheckIn(reg.ID, indices, method)
	}

	return &models.CheckInResult{
		Success:             true,
		TransitionedIndices: indices,
		Registration:        reg,
	}, nil
}

// targetIndices works out which attendee indices this request transitions.
func (s *Service) targetIndices(reg *models.Registration, attendeeIndex *int) ([]int, *models.CheckInRecord, error) {
	count := reg.AttendeeCount()

	if attendeeIndex != nil {
		idx := *attendeeIndex
		if idx < 0 || idx >= count {
			return nil, nil, fmt.Errorf("%w: index %d, registration covers %d attendees", ErrInvalidAttendeeIndex, idx, count)
		}
		if reg.IsCheckedIn(idx) {
			rec := reg.CheckIns[idx]
			return nil, &rec, fmt.Errorf("%w: index %d at %s", ErrAttendeeAlreadyCheckedIn, idx, rec.CheckedInAt.Format(time.RFC3339))
		}
		return []int{idx}, nil, nil
	}

	// Group check-in: indices already checked in stay untouched and are
	// excluded from the transitioned result.
	var indices []int
	for idx := 0; idx < count; idx++ {
		if !reg.IsCheckedIn(idx) {
			indices = append(indices, idx)
		}
	}
	if len(indices) == 0 {
		return nil, nil, ErrAllAlreadyCheckedIn
	}
	return indices, nil, nil
}

func (s *Service) publish(reg *models.Registration, indices []int, method string, at time.Time) {
	for _, idx := range indices {
		att, _ := reg.AttendeeAt(idx)
		event := models.CheckInEvent{
			RegistrationID: reg.ID,
			AttendeeIndex:  idx,
			AttendeeName:   att.Name,
			Church:         att.Church,
			Method:         method,
			Timestamp:      at,
		}

		for _, sink := range s.Sinks {
			sink.Consume(event)
		}

		if s.Kafka != nil {
			if err := s.Kafka.PublishCheckedIn(event); err != nil {
				// Monitoring is best effort; the transition already committed.
				s.logWarn("KAFKA", fmt.Sprintf("publish check-in %s[%d]: %v", reg.ID, idx, err))
			}
		}
	}
}

func (s *Service) logWarn(category, message string) {
	if s.Logger != nil {
		s.Logger.Warn(category, message)
	}
}
