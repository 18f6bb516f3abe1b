package alerts

import (
	"sort"
	"time"

	"renaissance-stewcall/internal/extractor"
	"renaissance-stewcall/internal/models"

	"go.uber.org/zap"
)

// DefaultGreenFlash how long an accepted alert stays green
const DefaultGreenFlash = 10 * time.Second

// FlashTracker remembers which flash colors an alarm has already shown.
// Implemented by *ledger.Ledger.
type FlashTracker interface {
	MarkAlarmFlashed(callID int64, kind models.FlashKind)
	HasAlarmFlashed(callID int64, kind models.FlashKind) bool
}

// Option configures a Projection
type Option func(*Projection)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(p *Projection) { p.now = now }
}

// WithGreenFlash overrides DefaultGreenFlash
func WithGreenFlash(d time.Duration) Option {
	return func(p *Projection) {
		if d > 0 {
			p.greenFor = d
		}
	}
}

// Projection per (wristband, call) alert map with flash decay.
// Not safe for concurrent use; the service serialises every caller.
type Projection struct {
	alerts   map[string]*models.ServiceCallAlert
	flash    FlashTracker
	greenFor time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewProjection creates an empty projection
func NewProjection(flash FlashTracker, logger *zap.Logger, opts ...Option) *Projection {
	p := &Projection{
		alerts:   make(map[string]*models.ServiceCallAlert),
		flash:    flash,
		greenFor: DefaultGreenFlash,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Upsert projects a record onto every wristband it names and applies the
// red/green transition rules. Returns the keys that started flashing.
func (p *Projection) Upsert(rec models.ServiceCallRecord) []string {
	var flashed []string
	for _, w := range rec.AffectedIdentifiers {
		key := models.AlertKey(w, rec.ID)
		a, ok := p.alerts[key]
		if !ok {
			a = &models.ServiceCallAlert{
				WristbandID: w,
				CallID:      rec.ID,
				Status:      rec.Status,
				FlashState:  models.FlashStateNone,
			}
			p.alerts[key] = a
			copyRecordFields(a, rec)
			if rec.IsActive() && p.startFlash(a, models.FlashRed) {
				flashed = append(flashed, key)
			}
			continue
		}

		wasActive := a.Status == models.StatusSentToRadios
		copyRecordFields(a, rec)
		a.Status = rec.Status
		if wasActive && !rec.IsActive() && p.startFlash(a, models.FlashGreen) {
			flashed = append(flashed, key)
		}
	}
	return flashed
}

// Accept marks one alert accepted locally. False when the key is unknown
// or the alert is already accepted.
func (p *Projection) Accept(key, by string) bool {
	a, ok := p.alerts[key]
	if !ok || a.Status == models.StatusAccepted {
		return false
	}
	a.Status = models.StatusAccepted
	a.AckBy = by
	a.AckTime = p.now().UTC().Format(time.RFC3339)
	p.startFlash(a, models.FlashGreen)
	return true
}

// startFlash sets the flash unless this alarm already showed that color.
// Alerts of the same call on other wristbands join a flash that is still
// running.
func (p *Projection) startFlash(a *models.ServiceCallAlert, kind models.FlashKind) bool {
	if p.flash.HasAlarmFlashed(a.CallID, kind) {
		if sib := p.flashingSibling(a, models.FlashState(kind)); sib != nil {
			start := *sib.FlashStartTime
			a.FlashState = sib.FlashState
			a.FlashStartTime = &start
			return true
		}
		a.FlashState = models.FlashStateNone
		a.FlashStartTime = nil
		return false
	}
	now := p.now()
	a.FlashState = models.FlashState(kind)
	a.FlashStartTime = &now
	p.flash.MarkAlarmFlashed(a.CallID, kind)
	return true
}

func (p *Projection) flashingSibling(a *models.ServiceCallAlert, state models.FlashState) *models.ServiceCallAlert {
	for _, other := range p.alerts {
		if other != a && other.CallID == a.CallID && other.FlashState == state && other.FlashStartTime != nil {
			return other
		}
	}
	return nil
}

// Sweep applies decay: green ends after the flash window, red ends as soon
// as the call is no longer active. Returns how many alerts settled.
func (p *Projection) Sweep(now time.Time) int {
	n := 0
	for _, a := range p.alerts {
		switch a.FlashState {
		case models.FlashStateGreen:
			if a.FlashStartTime == nil || now.Sub(*a.FlashStartTime) > p.greenFor {
				a.FlashState = models.FlashStateNone
				a.FlashStartTime = nil
				n++
			}
		case models.FlashStateRed:
			if a.Status != models.StatusSentToRadios {
				a.FlashState = models.FlashStateNone
				a.FlashStartTime = nil
				n++
			}
		}
	}
	return n
}

// ForWristband alerts for one wristband, newest first
func (p *Projection) ForWristband(wristbandID string) []models.ServiceCallAlert {
	var out []models.ServiceCallAlert
	for _, a := range p.alerts {
		if a.WristbandID == wristbandID {
			out = append(out, *a)
		}
	}
	sortNewestFirst(out)
	return out
}

// Count active alerts for one wristband
func (p *Projection) Count(wristbandID string) int {
	n := 0
	for _, a := range p.alerts {
		if a.WristbandID == wristbandID && a.Status == models.StatusSentToRadios {
			n++
		}
	}
	return n
}

// All alerts, newest first
func (p *Projection) All() []models.ServiceCallAlert {
	out := make([]models.ServiceCallAlert, 0, len(p.alerts))
	for _, a := range p.alerts {
		out = append(out, *a)
	}
	sortNewestFirst(out)
	return out
}

// Get one alert by key
func (p *Projection) Get(key string) (models.ServiceCallAlert, bool) {
	a, ok := p.alerts[key]
	if !ok {
		return models.ServiceCallAlert{}, false
	}
	return *a, true
}

// MostRecentActive up to limit unaccepted alerts, newest first
func (p *Projection) MostRecentActive(limit int) []models.ServiceCallAlert {
	var out []models.ServiceCallAlert
	for _, a := range p.alerts {
		if a.Status == models.StatusSentToRadios {
			out = append(out, *a)
		}
	}
	sortNewestFirst(out)
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Remove drops every alert of a call
func (p *Projection) Remove(callID int64) int {
	n := 0
	for k, a := range p.alerts {
		if a.CallID == callID {
			delete(p.alerts, k)
			n++
		}
	}
	return n
}

// Retain drops alerts whose call is not in keep
func (p *Projection) Retain(keep map[int64]struct{}) int {
	n := 0
	for k, a := range p.alerts {
		if _, ok := keep[a.CallID]; !ok {
			delete(p.alerts, k)
			n++
		}
	}
	return n
}

// Reset forgets every alert; flash history stays in the ledger
func (p *Projection) Reset() {
	p.alerts = make(map[string]*models.ServiceCallAlert)
}

// Len number of alerts
func (p *Projection) Len() int {
	return len(p.alerts)
}

func copyRecordFields(a *models.ServiceCallAlert, rec models.ServiceCallRecord) {
	a.Text = rec.Text
	a.Timestamp = rec.Timestamp
	if rec.AckBy != "" {
		a.AckBy = rec.AckBy
	}
	if rec.AckTime != "" {
		a.AckTime = rec.AckTime
	}
}

// sortNewestFirst by parsed timestamp, then call id, then wristband
func sortNewestFirst(out []models.ServiceCallAlert) {
	sort.SliceStable(out, func(i, j int) bool {
		ti, _ := extractor.NormalizeTimestamp(out[i].Timestamp)
		tj, _ := extractor.NormalizeTimestamp(out[j].Timestamp)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		if out[i].CallID != out[j].CallID {
			return out[i].CallID > out[j].CallID
		}
		return out[i].WristbandID < out[j].WristbandID
	})
}
