// Package ledger is the local override store for service calls. A user's
// accept / clear / hide decision recorded here always wins over whatever the
// upstream alarm system keeps reporting.
package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"renaissance-stewcall/internal/models"

	"go.uber.org/zap"
)

// DefaultRetention how long cleared and hidden entries are kept
const DefaultRetention = 7 * 24 * time.Hour

// Option configures a Ledger
type Option func(*Ledger)

// WithClock replaces time.Now (tests)
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithRetention overrides DefaultRetention
func WithRetention(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.retention = d
		}
	}
}

// Ledger local alarm ledger. Safe for concurrent use.
type Ledger struct {
	mu        sync.Mutex
	entries   map[string]*models.LedgerEntry
	store     Store
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// New creates an empty ledger backed by store; call Load to read persisted state
func New(store Store, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		entries:   make(map[string]*models.LedgerEntry),
		store:     store,
		retention: DefaultRetention,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces in-memory state with the persisted document. A missing or
// unreadable document leaves the ledger empty; it never fails startup.
func (l *Ledger) Load(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[string]*models.LedgerEntry)

	doc, err := l.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrStoreMiss) {
			l.logger.Info("No alarm ledger found, starting empty")
		} else {
			l.logger.Error("Alarm ledger unreadable, starting empty", zap.Error(err))
		}
		return
	}

	for id, e := range doc.Alarms {
		entry := e
		entry.ID = id
		l.entries[id] = &entry
	}
	l.logger.Info("Loaded alarm ledger",
		zap.Int("entries", len(l.entries)),
		zap.Time("last_updated", doc.LastUpdated),
	)
}

// ProcessIncomingAlarms applies local precedence. Known alarms get their
// displayed status and ack metadata from the ledger; unknown alarms get a new
// active entry and pass through unchanged. Cleared and hidden alarms are
// returned too; use FilterDisplayable to drop them.
func (l *Ledger) ProcessIncomingAlarms(records []models.ServiceCallRecord) []models.ServiceCallRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	created := 0
	out := make([]models.ServiceCallRecord, 0, len(records))
	for _, rec := range records {
		rec = rec.Clone()
		id := models.LedgerID(rec.ID)
		entry, ok := l.entries[id]
		if !ok {
			l.entries[id] = &models.LedgerEntry{ID: id, Status: models.LedgerActive, FirstSeen: now}
			created++
			out = append(out, rec)
			continue
		}

		switch entry.Status {
		case models.LedgerAcknowledged:
			rec.Status = models.StatusAccepted
			rec.AckBy = entry.AcknowledgedBy
			rec.AckTime = formatTime(entry.AcknowledgedAt)
		case models.LedgerCleared, models.LedgerHidden:
			rec.Status = models.StatusAccepted
			if entry.AcknowledgedBy != "" {
				rec.AckBy = entry.AcknowledgedBy
				rec.AckTime = formatTime(entry.AcknowledgedAt)
			} else {
				rec.AckBy = entry.ClearedBy
				rec.AckTime = formatTime(entry.ClearedAt)
			}
		}
		// an active entry holds no local decision yet; upstream status stands
		out = append(out, rec)
	}

	if created > 0 {
		l.persistLocked()
	}
	return out
}

// FilterDisplayable drops records whose entry is cleared or hidden
func (l *Ledger) FilterDisplayable(records []models.ServiceCallRecord) []models.ServiceCallRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := records[:0:0]
	for _, rec := range records {
		if e, ok := l.entries[models.LedgerID(rec.ID)]; ok && e.IsManaged() {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// AcknowledgeAlarm marks one alarm acknowledged. Unknown, cleared and hidden
// alarms are left alone and false is returned.
func (l *Ledger) AcknowledgeAlarm(callID int64, by string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.acknowledgeLocked(callID, by, l.now()) {
		return false
	}
	l.persistLocked()
	return true
}

// AcknowledgeAlarms acknowledges several alarms with one write; returns the count changed
func (l *Ledger) AcknowledgeAlarms(callIDs []int64, by string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for _, id := range callIDs {
		if l.acknowledgeLocked(id, by, now) {
			n++
		}
	}
	if n > 0 {
		l.persistLocked()
	}
	return n
}

func (l *Ledger) acknowledgeLocked(callID int64, by string, now time.Time) bool {
	entry, ok := l.entries[models.LedgerID(callID)]
	if !ok || entry.IsManaged() {
		return false
	}
	entry.Status = models.LedgerAcknowledged
	entry.AcknowledgedBy = by
	entry.AcknowledgedAt = &now
	return true
}

// ClearAlarm removes an alarm from display for good
func (l *Ledger) ClearAlarm(callID int64, by string) bool {
	return l.setManaged(callID, models.LedgerCleared, by)
}

// HideAlarm like ClearAlarm but recorded as hidden
func (l *Ledger) HideAlarm(callID int64, by string) bool {
	return l.setManaged(callID, models.LedgerHidden, by)
}

func (l *Ledger) setManaged(callID int64, status models.LedgerStatus, by string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[models.LedgerID(callID)]
	if !ok {
		return false
	}
	now := l.now()
	entry.Status = status
	entry.ClearedBy = by
	entry.ClearedAt = &now
	l.persistLocked()
	return true
}

// ClearAllAlarms clears every entry not already cleared or hidden
func (l *Ledger) ClearAllAlarms(by string) int {
	return l.bulkClear(by, func(e *models.LedgerEntry) bool { return !e.IsManaged() })
}

// ClearActiveAlarms clears only entries nobody has acknowledged yet
func (l *Ledger) ClearActiveAlarms(by string) int {
	return l.bulkClear(by, func(e *models.LedgerEntry) bool { return e.Status == models.LedgerActive })
}

func (l *Ledger) bulkClear(by string, match func(*models.LedgerEntry) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for _, e := range l.entries {
		if !match(e) {
			continue
		}
		e.Status = models.LedgerCleared
		e.ClearedBy = by
		e.ClearedAt = &now
		n++
	}
	if n > 0 {
		l.persistLocked()
	}
	return n
}

// MarkAlarmFlashed records that an alarm has shown the given flash color.
// Unknown alarms get an entry so the flag is not lost.
func (l *Ledger) MarkAlarmFlashed(callID int64, kind models.FlashKind) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := models.LedgerID(callID)
	now := l.now()
	entry, ok := l.entries[id]
	if !ok {
		entry = &models.LedgerEntry{ID: id, Status: models.LedgerActive, FirstSeen: now}
		l.entries[id] = entry
	}
	switch kind {
	case models.FlashRed:
		entry.HasFlashedRed = true
	case models.FlashGreen:
		entry.HasFlashedGreen = true
	default:
		return
	}
	entry.LastFlashTime = &now
	l.persistLocked()
}

// HasAlarmFlashed reports whether MarkAlarmFlashed was called for this color
func (l *Ledger) HasAlarmFlashed(callID int64, kind models.FlashKind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[models.LedgerID(callID)]
	if !ok {
		return false
	}
	switch kind {
	case models.FlashRed:
		return entry.HasFlashedRed
	case models.FlashGreen:
		return entry.HasFlashedGreen
	}
	return false
}

// CleanupOldAlarms deletes cleared/hidden entries older than the retention window
func (l *Ledger) CleanupOldAlarms() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.retention)
	n := 0
	for id, e := range l.entries {
		if e.IsManaged() && e.ClearedAt != nil && e.ClearedAt.Before(cutoff) {
			delete(l.entries, id)
			n++
		}
	}
	if n > 0 {
		l.persistLocked()
		l.logger.Info("Removed expired alarm ledger entries", zap.Int("removed", n))
	}
	return n
}

// ScheduleCleanup runs CleanupOldAlarms once after delay unless ctx ends first
func (l *Ledger) ScheduleCleanup(ctx context.Context, delay time.Duration) {
	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
			l.CleanupOldAlarms()
		}
	}()
}

// Get returns a copy of the entry for callID
func (l *Ledger) Get(callID int64) (models.LedgerEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[models.LedgerID(callID)]
	if !ok {
		return models.LedgerEntry{}, false
	}
	return *e, true
}

// IsManaged true when the alarm was cleared or hidden locally
func (l *Ledger) IsManaged(callID int64) bool {
	e, ok := l.Get(callID)
	return ok && e.IsManaged()
}

// Entries copies all entries ordered by first sighting
func (l *Ledger) Entries() []models.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].ID < out[j].ID
		}
		return out[i].FirstSeen.Before(out[j].FirstSeen)
	})
	return out
}

// Stats counts entries per status
func (l *Ledger) Stats() map[models.LedgerStatus]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := map[models.LedgerStatus]int{
		models.LedgerActive:       0,
		models.LedgerAcknowledged: 0,
		models.LedgerCleared:      0,
		models.LedgerHidden:       0,
	}
	for _, e := range l.entries {
		stats[e.Status]++
	}
	return stats
}

// persistLocked writes the full ledger; failures are logged and the
// in-memory state stays authoritative for this process
func (l *Ledger) persistLocked() {
	doc := &Document{
		Version:     DocumentVersion,
		LastUpdated: l.now(),
		Alarms:      make(map[string]models.LedgerEntry, len(l.entries)),
	}
	for id, e := range l.entries {
		doc.Alarms[id] = *e
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Save(ctx, doc); err != nil {
		l.logger.Error("Failed to persist alarm ledger",
			zap.Int("entries", len(doc.Alarms)),
			zap.Error(err),
		)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
