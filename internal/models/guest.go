package models

// Guest wristband assignment row from the guest directory
type Guest struct {
	WristbandCode string `json:"wristband_code" db:"wristband_code"`
	GuestName     string `json:"guest_name" db:"guest_name"`
	CabinCode     string `json:"cabin_code" db:"cabin_code"`
}

// Notification kinds
const (
	NotifyNewCall  = "new_call"
	NotifyAccepted = "accepted"
)

// Notification toast pushed to the UI sinks
type Notification struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	CallID       int64    `json:"call_id"`
	WristbandIDs []string `json:"wristband_ids"`
	GuestNames   []string `json:"guest_names,omitempty"`
	Text         string   `json:"text"`
	AckBy        string   `json:"ack_by,omitempty"`
	Timestamp    string   `json:"timestamp,omitempty"`
}
