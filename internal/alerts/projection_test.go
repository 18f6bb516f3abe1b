package alerts_test

import (
	"testing"
	"time"

	"renaissance-stewcall/internal/alerts"
	"renaissance-stewcall/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memFlash in-memory FlashTracker
type memFlash map[string]bool

func (m memFlash) MarkAlarmFlashed(id int64, kind models.FlashKind) {
	m[models.LedgerID(id)+string(kind)] = true
}

func (m memFlash) HasAlarmFlashed(id int64, kind models.FlashKind) bool {
	return m[models.LedgerID(id)+string(kind)]
}

var t0 = time.Date(2025, 8, 8, 9, 4, 30, 0, time.UTC)

func newProjection(flash memFlash, now *time.Time) *alerts.Projection {
	return alerts.NewProjection(flash, zap.NewNop(), alerts.WithClock(func() time.Time { return *now }))
}

func call(id int64, status models.CallStatus, ids ...string) models.ServiceCallRecord {
	return models.ServiceCallRecord{
		ID:                  id,
		Text:                "G2 505 Renaissance on AV ROOM 232",
		AffectedIdentifiers: ids,
		Status:              status,
		Timestamp:           "2025-08-08T09:04:30Z",
	}
}

func TestUpsert_NewActiveFlashesRedOnce(t *testing.T) {
	flash := memFlash{}
	now := t0
	p := newProjection(flash, &now)

	assert.False(t, flash.HasAlarmFlashed(42, models.FlashRed))
	keys := p.Upsert(call(42, models.StatusSentToRadios, "G2 505"))
	assert.Equal(t, []string{"G2 505-42"}, keys)
	assert.True(t, flash.HasAlarmFlashed(42, models.FlashRed))

	a, ok := p.Get("G2 505-42")
	require.True(t, ok)
	assert.Equal(t, models.FlashStateRed, a.FlashState)

	// a fresh projection after reconnect must not re-animate the same alarm
	p2 := newProjection(flash, &now)
	assert.Empty(t, p2.Upsert(call(42, models.StatusSentToRadios, "G2 505")))
	a, _ = p2.Get("G2 505-42")
	assert.Equal(t, models.FlashStateNone, a.FlashState)
}

func TestUpsert_EveryWristbandOfACallFlashes(t *testing.T) {
	flash := memFlash{}
	now := t0
	p := newProjection(flash, &now)

	keys := p.Upsert(call(9, models.StatusSentToRadios, "P1", "C2"))
	assert.Equal(t, []string{"P1-9", "C2-9"}, keys)
	for _, k := range keys {
		a, ok := p.Get(k)
		require.True(t, ok)
		assert.Equal(t, models.FlashStateRed, a.FlashState, k)
	}

	now = t0.Add(time.Second)
	assert.True(t, p.Accept("P1-9", "Anna"))
	assert.True(t, p.Accept("C2-9", "Anna"))
	for _, k := range keys {
		a, _ := p.Get(k)
		assert.Equal(t, models.FlashStateGreen, a.FlashState, k)
		require.NotNil(t, a.FlashStartTime)
		assert.Equal(t, now, *a.FlashStartTime)
	}
}

func TestUpsert_NewAcceptedDoesNotFlash(t *testing.T) {
	now := t0
	p := newProjection(memFlash{}, &now)
	assert.Empty(t, p.Upsert(call(1, models.StatusAccepted, "P1")))
	a, _ := p.Get("P1-1")
	assert.Equal(t, models.FlashStateNone, a.FlashState)
}

func TestUpsert_ActiveToAcceptedFlashesGreen(t *testing.T) {
	flash := memFlash{}
	now := t0
	p := newProjection(flash, &now)
	p.Upsert(call(7, models.StatusSentToRadios, "G1-234", "C1"))

	now = t0.Add(3 * time.Second)
	accepted := call(7, models.StatusAccepted, "G1-234", "C1")
	accepted.AckBy = "Anna"
	keys := p.Upsert(accepted)
	assert.ElementsMatch(t, []string{"G1-234-7", "C1-7"}, keys)

	a, _ := p.Get("G1-234-7")
	assert.Equal(t, models.FlashStateGreen, a.FlashState)
	assert.Equal(t, "Anna", a.AckBy)
	require.NotNil(t, a.FlashStartTime)
	assert.Equal(t, now, *a.FlashStartTime)

	// second wristband of the same call already used the green flash
	a, _ = p.Get("C1-7")
	assert.Equal(t, models.FlashStateNone, a.FlashState)
}

func TestAccept(t *testing.T) {
	flash := memFlash{}
	now := t0
	p := newProjection(flash, &now)
	p.Upsert(call(5, models.StatusSentToRadios, "G2 505"))

	assert.True(t, p.Accept("G2 505-5", "Dashboard User"))
	a, _ := p.Get("G2 505-5")
	assert.Equal(t, models.StatusAccepted, a.Status)
	assert.Equal(t, models.FlashStateGreen, a.FlashState)
	assert.Equal(t, "Dashboard User", a.AckBy)
	assert.True(t, flash.HasAlarmFlashed(5, models.FlashGreen))

	assert.False(t, p.Accept("G2 505-5", "again"))
	assert.False(t, p.Accept("missing-1", "x"))
}

func TestSweep_GreenDecay(t *testing.T) {
	now := t0
	p := newProjection(memFlash{}, &now)
	p.Upsert(call(1, models.StatusSentToRadios, "P1"))
	p.Upsert(call(2, models.StatusSentToRadios, "P2"))

	now = t0.Add(-11 * time.Second)
	p.Accept("P1-1", "x")
	now = t0.Add(-5 * time.Second)
	p.Accept("P2-2", "x")

	assert.Equal(t, 1, p.Sweep(t0))
	a, _ := p.Get("P1-1")
	assert.Equal(t, models.FlashStateNone, a.FlashState)
	assert.Nil(t, a.FlashStartTime)
	a, _ = p.Get("P2-2")
	assert.Equal(t, models.FlashStateGreen, a.FlashState)
}

func TestSweep_RedPersistsWhileActive(t *testing.T) {
	now := t0
	p := newProjection(memFlash{}, &now)
	p.Upsert(call(1, models.StatusSentToRadios, "P1"))

	assert.Equal(t, 0, p.Sweep(t0.Add(time.Hour)))
	a, _ := p.Get("P1-1")
	assert.Equal(t, models.FlashStateRed, a.FlashState)
}

func TestSweep_RedClearedOnceInactive(t *testing.T) {
	flash := memFlash{}
	flash.MarkAlarmFlashed(1, models.FlashGreen)
	now := t0
	p := newProjection(flash, &now)
	p.Upsert(call(1, models.StatusSentToRadios, "P1"))
	p.Upsert(call(1, models.StatusAccepted, "P1"))

	a, _ := p.Get("P1-1")
	assert.Equal(t, models.FlashStateNone, a.FlashState)
	assert.Equal(t, models.StatusAccepted, a.Status)
}

func TestReads(t *testing.T) {
	now := t0
	p := newProjection(memFlash{}, &now)
	older := call(1, models.StatusSentToRadios, "G2 505")
	older.Timestamp = "20250808:080000"
	p.Upsert(older)
	p.Upsert(call(2, models.StatusSentToRadios, "G2 505", "P1"))
	p.Upsert(call(3, models.StatusAccepted, "G2 505"))

	got := p.ForWristband("G2 505")
	require.Len(t, got, 3)
	assert.Equal(t, int64(3), got[0].CallID)
	assert.Equal(t, int64(1), got[2].CallID)
	assert.Equal(t, 2, p.Count("G2 505"))
	assert.Equal(t, 1, p.Count("P1"))
	assert.Equal(t, 0, p.Count("C9"))
	assert.Len(t, p.All(), 4)

	recent := p.MostRecentActive(2)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(2), recent[0].CallID)
	assert.Equal(t, int64(2), recent[1].CallID)

	assert.Equal(t, 2, p.Remove(2))
	assert.Equal(t, 1, p.Retain(map[int64]struct{}{3: {}}))
	assert.Equal(t, 1, p.Len())

	p.Reset()
	assert.Zero(t, p.Len())
}
