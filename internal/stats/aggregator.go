package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// Source is the reconciliation view of the registration store. The aggregator
// is a best-effort cache over it; the check_ins map on each registration stays
// the source of truth.
type Source interface {
	ListByStatus(ctx context.Context, status string) ([]models.Registration, error)
}

// Aggregator keeps the live "checked-in / expected" counters. One instance per
// process, constructed in main: it seeds itself with a full reconciliation on
// Start, then applies events incrementally, and re-reconciles on a timer so a
// missed event can never drift the counters forever.
type Aggregator struct {
	source   Source
	logger   *logger.Logger
	interval time.Duration

	mu            sync.RWMutex
	stats         models.CheckInStats
	checkedInRegs map[string]struct{}

	subMu       sync.RWMutex
	subscribers []chan models.CheckInStats

	cancel context.CancelFunc
}

func NewAggregator(source Source, log *logger.Logger, reconcileInterval time.Duration) *Aggregator {
	if reconcileInterval <= 0 {
		reconcileInterval = 5 * time.Minute
	}
	return &Aggregator{
		source:        source,
		logger:        log,
		interval:      reconcileInterval,
		checkedInRegs: map[string]struct{}{},
	}
}

// Start seeds the counters from the store and begins the periodic
// reconciliation loop. The seed pass must succeed; periodic passes are best
// effort.
func (a *Aggregator) Start(ctx context.Context) error {
	if err := a.Reconcile(ctx); err != nil {
		return fmt.Errorf("seed reconciliation: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go func() {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := a.Reconcile(loopCtx); err != nil {
					a.logWarn(fmt.Sprintf("periodic reconciliation failed: %v", err))
				}
			case <-loopCtx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop ends the reconciliation loop and closes subscriber channels.
func (a *Aggregator) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.subMu.Lock()
	for _, ch := range a.subscribers {
		close(ch)
	}
	a.subscribers = nil
	a.subMu.Unlock()
}

// Consume applies one check-in event to the running counters. It never fails
// into the check-in path: any inconsistency is corrected by the next
// reconciliation pass.
func (a *Aggregator) Consume(event models.CheckInEvent) {
	a.mu.Lock()
	a.stats.CheckedInAttendees++
	if _, seen := a.checkedInRegs[event.RegistrationID]; !seen {
		a.checkedInRegs[event.RegistrationID] = struct{}{}
		a.stats.CheckedInRegistrations++
	}
	a.refreshDerivedLocked()
	snapshot := a.stats
	a.mu.Unlock()

	a.broadcast(snapshot)
}

// Reconcile recomputes every counter from the store. Called on startup, on the
// periodic timer, and on explicit demand.
func (a *Aggregator) Reconcile(ctx context.Context) error {
	confirmed, err := a.source.ListByStatus(ctx, models.StatusConfirmed)
	if err != nil {
		return err
	}

	checkedInRegs := make(map[string]struct{})
	checkedInAttendees := 0
	totalExpected := 0
	for i := range confirmed {
		reg := &confirmed[i]
		totalExpected += reg.AttendeeCount()
		if n := reg.CheckedInCount(); n > 0 {
			checkedInRegs[reg.ID] = struct{}{}
			checkedInAttendees += n
		}
	}

	a.mu.Lock()
	a.checkedInRegs = checkedInRegs
	a.stats.TotalConfirmedRegistrations = len(confirmed)
	a.stats.TotalExpectedAttendees = totalExpected
	a.stats.CheckedInRegistrations = len(checkedInRegs)
	a.stats.CheckedInAttendees = checkedInAttendees
	a.refreshDerivedLocked()
	snapshot := a.stats
	a.mu.Unlock()

	a.broadcast(snapshot)
	return nil
}

// Snapshot returns the current read model.
func (a *Aggregator) Snapshot() models.CheckInStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// Subscribe registers a listener that receives a snapshot after every change.
// The channel is buffered and sends are non-blocking, so a stalled dashboard
// only misses intermediate snapshots, never blocks check-in.
func (a *Aggregator) Subscribe(ctx context.Context) chan models.CheckInStats {
	ch := make(chan models.CheckInStats, 10)

	a.subMu.Lock()
	a.subscribers = append(a.subscribers, ch)
	a.subMu.Unlock()

	go func() {
		<-ctx.Done()
		a.removeSubscriber(ch)
	}()

	return ch
}

func (a *Aggregator) broadcast(snapshot models.CheckInStats) {
	a.subMu.RLock()
	defer a.subMu.RUnlock()
	for _, ch := range a.subscribers {
		select {
		case ch <- snapshot:
		default:
			// Buffer full; the subscriber catches up on the next snapshot.
		}
	}
}

func (a *Aggregator) removeSubscriber(ch chan models.CheckInStats) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for i, sub := range a.subscribers {
		if sub == ch {
			a.subscribers = append(a.subscribers[:i], a.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (a *Aggregator) refreshDerivedLocked() {
	if a.stats.TotalExpectedAttendees > 0 {
		a.stats.Percentage = float64(a.stats.CheckedInAttendees) / float64(a.stats.TotalExpectedAttendees) * 100
	} else {
		a.stats.Percentage = 0
	}
	a.stats.UpdatedAt = time.Now()
}

func (a *Aggregator) logWarn(message string) {
	if a.logger != nil {
		a.logger.Warn("STATS", message)
	}
}
