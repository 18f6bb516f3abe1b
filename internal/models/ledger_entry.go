package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LedgerStatus local override status
type LedgerStatus string

const (
	LedgerActive       LedgerStatus = "active"
	LedgerAcknowledged LedgerStatus = "acknowledged"
	LedgerCleared      LedgerStatus = "cleared"
	LedgerHidden       LedgerStatus = "hidden"
)

// FlashKind flash color tracked per alarm
type FlashKind string

const (
	FlashRed   FlashKind = "red"
	FlashGreen FlashKind = "green"
)

// LedgerEntry local authoritative state for one alarm
type LedgerEntry struct {
	ID              string       `json:"id"`
	Status          LedgerStatus `json:"status"`
	AcknowledgedBy  string       `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt  *time.Time   `json:"acknowledgedAt,omitempty"`
	ClearedBy       string       `json:"clearedBy,omitempty"`
	ClearedAt       *time.Time   `json:"clearedAt,omitempty"`
	HasFlashedRed   bool         `json:"hasFlashedRed"`
	HasFlashedGreen bool         `json:"hasFlashedGreen"`
	LastFlashTime   *time.Time   `json:"lastFlashTime,omitempty"`
	FirstSeen       time.Time    `json:"firstSeen"`
}

// IsManaged cleared or hidden entries are never displayed again
func (e LedgerEntry) IsManaged() bool {
	return e.Status == LedgerCleared || e.Status == LedgerHidden
}

// LedgerID "alarm_<id>"
func LedgerID(callID int64) string {
	return fmt.Sprintf("alarm_%d", callID)
}

// ParseLedgerID reverses LedgerID
func ParseLedgerID(id string) (int64, bool) {
	if !strings.HasPrefix(id, "alarm_") {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(id, "alarm_"), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
