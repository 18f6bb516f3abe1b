// Package reconciler merges parsed upstream payloads with the previous
// in-memory snapshot and the local ledger, and decides which changes are
// worth a notification.
package reconciler

import (
	"fmt"
	"sort"
	"time"

	"renaissance-stewcall/internal/alerts"
	"renaissance-stewcall/internal/extractor"
	"renaissance-stewcall/internal/ledger"
	"renaissance-stewcall/internal/models"
	"renaissance-stewcall/internal/parser"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Default caps per cycle
const (
	DefaultNotifyCap         = 2
	DefaultAckAttributionCap = 2
)

// CycleReport outcome of one Apply
type CycleReport struct {
	Kind          models.SourceKind
	Parsed        int
	Displayed     int
	New           int
	Changed       int
	Unchanged     int
	Baseline      bool
	AcksApplied   int
	Skipped       int
	Notifications []models.Notification
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithCaps overrides the notification and ack attribution caps
func WithCaps(notifyCap, ackCap int) Option {
	return func(r *Reconciler) {
		if notifyCap > 0 {
			r.notifyCap = notifyCap
		}
		if ackCap > 0 {
			r.ackCap = ackCap
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// Reconciler owns the displayed record snapshot. Not safe for concurrent
// use; the service serialises every caller behind one mutex.
type Reconciler struct {
	parser     *parser.Parser
	ledger     *ledger.Ledger
	projection *alerts.Projection
	notifyCap  int
	ackCap     int
	now        func() time.Time
	logger     *zap.Logger

	records  map[int64]models.ServiceCallRecord
	seenAcks map[string]struct{}
	// ids of the last non-empty displayed snapshot; nil until one was seen
	lastNonEmpty map[int64]struct{}
}

// New creates a reconciler
func New(p *parser.Parser, l *ledger.Ledger, projection *alerts.Projection, logger *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		parser:     p,
		ledger:     l,
		projection: projection,
		notifyCap:  DefaultNotifyCap,
		ackCap:     DefaultAckAttributionCap,
		now:        time.Now,
		logger:     logger,
		records:    make(map[int64]models.ServiceCallRecord),
		seenAcks:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply runs one payload through parse, ledger precedence, diff, notify
// decisions and the alert projection.
func (r *Reconciler) Apply(payload models.Payload) CycleReport {
	res := r.parser.Parse(payload.Kind, payload.Body)
	report := CycleReport{Kind: res.Kind, Parsed: len(res.Records), Skipped: res.Skipped}

	displayed := r.ledger.FilterDisplayable(r.ledger.ProcessIncomingAlarms(res.Records))
	report.Displayed = len(displayed)
	baseline := r.lastNonEmpty == nil
	report.Baseline = baseline

	var fresh, accepted []models.ServiceCallRecord
	for _, rec := range displayed {
		prev, ok := r.records[rec.ID]
		switch {
		case !ok:
			report.New++
			if _, known := r.lastNonEmpty[rec.ID]; rec.IsActive() && !baseline && !known {
				fresh = append(fresh, rec)
			}
		case prev.Status != rec.Status:
			report.Changed++
			if prev.IsActive() && !rec.IsActive() {
				accepted = append(accepted, rec)
			}
		default:
			report.Unchanged++
		}
		r.records[rec.ID] = rec
		r.projection.Upsert(rec)
	}

	// records cleared or hidden since the last cycle leave the display
	r.pruneManaged()

	if len(displayed) > 0 {
		r.lastNonEmpty = make(map[int64]struct{}, len(displayed))
		for _, rec := range displayed {
			r.lastNonEmpty[rec.ID] = struct{}{}
		}
	}

	if !baseline {
		acked := r.applyAcks(res.Acks)
		report.AcksApplied = len(acked)
		accepted = append(accepted, acked...)

		report.Notifications = append(report.Notifications, r.notifications(models.NotifyNewCall, fresh)...)
		report.Notifications = append(report.Notifications, r.notifications(models.NotifyAccepted, accepted)...)
	} else {
		// acks already in the first payload are history, not news
		for _, ack := range res.Acks {
			r.seenAcks[ackKey(ack)] = struct{}{}
		}
	}

	r.logger.Debug("Reconciled payload",
		zap.String("source", string(res.Kind)),
		zap.Int("parsed", report.Parsed),
		zap.Int("displayed", report.Displayed),
		zap.Int("new", report.New),
		zap.Int("changed", report.Changed),
		zap.Int("notifications", len(report.Notifications)),
		zap.Bool("baseline", report.Baseline),
	)
	return report
}

// ApplyAcks attributes log acknowledge events to alerts. An ack whose alarm
// id matches a known call acknowledges that call if it is still open and is
// ignored otherwise; an ack for an unknown id is applied to the most recent
// unaccepted alerts, capped. The upstream carries
// no wristband correlation, so the fallback is an approximation.
func (r *Reconciler) ApplyAcks(acks []models.AckEvent) []models.ServiceCallRecord {
	return r.applyAcks(acks)
}

func (r *Reconciler) applyAcks(acks []models.AckEvent) []models.ServiceCallRecord {
	var acked []models.ServiceCallRecord
	for _, ack := range acks {
		key := ackKey(ack)
		if _, seen := r.seenAcks[key]; seen {
			continue
		}
		r.seenAcks[key] = struct{}{}

		if rec, ok := r.records[ack.AlarmID]; ok {
			if !rec.IsActive() {
				continue
			}
			for _, w := range rec.AffectedIdentifiers {
				r.projection.Accept(models.AlertKey(w, rec.ID), ack.AckBy)
			}
			if r.acceptCall(rec.ID, ack.AckBy, ack.AckTime) {
				r.ledger.AcknowledgeAlarm(rec.ID, ack.AckBy)
				acked = append(acked, r.records[rec.ID])
			}
			continue
		}
		if _, known := r.ledger.Get(ack.AlarmID); known {
			// cleared or hidden since; nothing on display to accept
			continue
		}

		targets := r.projection.MostRecentActive(r.ackCap)
		if len(targets) == 0 {
			r.logger.Debug("Acknowledge event with no open alert", zap.Int64("alarm_id", ack.AlarmID))
			continue
		}
		for _, a := range targets {
			r.projection.Accept(a.Key(), ack.AckBy)
			r.ledger.AcknowledgeAlarm(a.CallID, ack.AckBy)
			if r.acceptCall(a.CallID, ack.AckBy, ack.AckTime) {
				acked = append(acked, r.records[a.CallID])
			}
		}
		r.logger.Info("Acknowledge attributed to recent alerts",
			zap.Int64("alarm_id", ack.AlarmID),
			zap.String("ack_by", ack.AckBy),
			zap.Int("alerts", len(targets)),
		)
	}
	return acked
}

// acceptCall marks the displayed record accepted. False when the record was
// already accepted or is unknown.
func (r *Reconciler) acceptCall(callID int64, by, at string) bool {
	rec, ok := r.records[callID]
	if !ok || !rec.IsActive() {
		return false
	}
	if at == "" {
		at = r.now().UTC().Format(time.RFC3339)
	}
	rec.Status = models.StatusAccepted
	rec.AckBy = by
	rec.AckTime = extractor.FormatTimestamp(at)
	r.records[callID] = rec
	return true
}

// AcceptWristband accepts the open alerts of one wristband, or only the one
// for callID when given. Returns the records that flipped to accepted.
func (r *Reconciler) AcceptWristband(wristbandID string, callID *int64, by string) []models.ServiceCallRecord {
	var flipped []models.ServiceCallRecord
	for _, a := range r.projection.ForWristband(wristbandID) {
		if callID != nil && a.CallID != *callID {
			continue
		}
		if !r.projection.Accept(a.Key(), by) {
			continue
		}
		r.ledger.AcknowledgeAlarm(a.CallID, by)
		if r.acceptCall(a.CallID, by, "") {
			flipped = append(flipped, r.records[a.CallID])
		}
	}
	return flipped
}

// AcceptAll accepts every open alert
func (r *Reconciler) AcceptAll(by string) []models.ServiceCallRecord {
	var flipped []models.ServiceCallRecord
	var ids []int64
	seen := make(map[int64]struct{})
	for _, a := range r.projection.MostRecentActive(-1) {
		r.projection.Accept(a.Key(), by)
		if _, ok := seen[a.CallID]; !ok {
			seen[a.CallID] = struct{}{}
			ids = append(ids, a.CallID)
		}
	}
	for _, id := range ids {
		if r.acceptCall(id, by, "") {
			flipped = append(flipped, r.records[id])
		}
	}
	r.ledger.AcknowledgeAlarms(ids, by)
	return flipped
}

// ClearAll clears every known alarm locally and empties the display
func (r *Reconciler) ClearAll(by string) int {
	n := r.ledger.ClearAllAlarms(by)
	r.records = make(map[int64]models.ServiceCallRecord)
	r.projection.Reset()
	return n
}

// ClearActive clears only the calls still active in the ledger; accepted
// calls stay on display
func (r *Reconciler) ClearActive(by string) int {
	n := r.ledger.ClearActiveAlarms(by)
	r.pruneManaged()
	return n
}

// Hide removes one call from display for good
func (r *Reconciler) Hide(callID int64, by string) error {
	if !r.ledger.HideAlarm(callID, by) {
		return fmt.Errorf("alarm %d: %w", callID, ledger.ErrNotFound)
	}
	delete(r.records, callID)
	r.projection.Remove(callID)
	return nil
}

// Reset forgets in-memory state after a reconnect. The ledger is untouched.
func (r *Reconciler) Reset() {
	r.records = make(map[int64]models.ServiceCallRecord)
	r.seenAcks = make(map[string]struct{})
	r.lastNonEmpty = nil
	r.projection.Reset()
}

// Records displayed records, newest first
func (r *Reconciler) Records() []models.ServiceCallRecord {
	out := make([]models.ServiceCallRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Clone())
	}
	sortNewestFirst(out)
	return out
}

// Baselined true once a non-empty payload has been applied since the last
// reset. Until then nothing counts as new.
func (r *Reconciler) Baselined() bool {
	return r.lastNonEmpty != nil
}

// AcceptedNotifications toasts for locally accepted records, capped like the
// accepted transitions of a cycle
func (r *Reconciler) AcceptedNotifications(recs []models.ServiceCallRecord) []models.Notification {
	return r.notifications(models.NotifyAccepted, recs)
}

func (r *Reconciler) pruneManaged() {
	keep := make(map[int64]struct{}, len(r.records))
	for id := range r.records {
		if r.ledger.IsManaged(id) {
			delete(r.records, id)
			continue
		}
		keep[id] = struct{}{}
	}
	r.projection.Retain(keep)
}

// notifications builds at most notifyCap toasts, newest records first
func (r *Reconciler) notifications(kind string, recs []models.ServiceCallRecord) []models.Notification {
	if len(recs) == 0 {
		return nil
	}
	recs = append([]models.ServiceCallRecord(nil), recs...)
	sortNewestFirst(recs)
	if len(recs) > r.notifyCap {
		r.logger.Info("Notification burst capped",
			zap.String("kind", kind),
			zap.Int("candidates", len(recs)),
			zap.Int("cap", r.notifyCap),
		)
		recs = recs[:r.notifyCap]
	}

	out := make([]models.Notification, 0, len(recs))
	for _, rec := range recs {
		out = append(out, newNotification(kind, rec))
	}
	return out
}

// newNotification toast for one record with a fresh id
func newNotification(kind string, rec models.ServiceCallRecord) models.Notification {
	return models.Notification{
		ID:           uuid.NewString(),
		Kind:         kind,
		CallID:       rec.ID,
		WristbandIDs: append([]string(nil), rec.AffectedIdentifiers...),
		Text:         rec.Text,
		AckBy:        rec.AckBy,
		Timestamp:    rec.Timestamp,
	}
}

func ackKey(ack models.AckEvent) string {
	return fmt.Sprintf("%d|%s|%s|%s", ack.AlarmID, ack.AckCode, ack.AckBy, ack.AckTime)
}

func sortNewestFirst(recs []models.ServiceCallRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		ti, _ := extractor.NormalizeTimestamp(recs[i].Timestamp)
		tj, _ := extractor.NormalizeTimestamp(recs[j].Timestamp)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return recs[i].ID > recs[j].ID
	})
}
