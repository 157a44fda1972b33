package models

import "time"

type EventType string

const (
	EventListUpdated          EventType = "list.updated"
	EventRegistrationStarted  EventType = "registration.started"
	EventRegistrationVerified EventType = "registration.verified"
	EventRegistrationRejected EventType = "registration.rejected"
	EventSessionEstablished   EventType = "session.established"
)

// TrustEvent is an audit record of a state change in the directory.
type TrustEvent struct {
	EventID     string    `json:"event_id" ch:"event_id"`
	EventBucket int       `json:"event_bucket" ch:"event_bucket"`
	EventDate   string    `json:"event_date" ch:"event_date"`
	EventTime   time.Time `json:"event_time" ch:"event_time"`
	EventType   EventType `json:"event_type" ch:"event_type"`
	UserID      string    `json:"user_id" ch:"user_id"`
	PhoneToken  string    `json:"phone_token,omitempty" ch:"phone_token"`
	Details     string    `json:"details,omitempty" ch:"details"`
}
