package models

import (
	"fmt"
	"time"
)

// FlashState visual state of a wristband alert
type FlashState string

const (
	FlashStateRed   FlashState = "red"
	FlashStateGreen FlashState = "green"
	FlashStateNone  FlashState = "none"
)

// ServiceCallAlert projection of one call onto one wristband
type ServiceCallAlert struct {
	WristbandID    string     `json:"wristbandId"`
	Status         CallStatus `json:"status"`
	CallID         int64      `json:"callId"`
	Text           string     `json:"text"`
	Timestamp      string     `json:"timestamp,omitempty"`
	AckBy          string     `json:"ackBy,omitempty"`
	AckTime        string     `json:"ackTime,omitempty"`
	FlashState     FlashState `json:"flashState"`
	FlashStartTime *time.Time `json:"flashStartTime,omitempty"`

	// GuestName filled from the guest directory when available
	GuestName string `json:"guestName,omitempty"`
	CabinCode string `json:"cabinCode,omitempty"`
}

// AlertKey "<wristband>-<callId>"
func AlertKey(wristbandID string, callID int64) string {
	return fmt.Sprintf("%s-%d", wristbandID, callID)
}

// Key of this alert
func (a ServiceCallAlert) Key() string {
	return AlertKey(a.WristbandID, a.CallID)
}
