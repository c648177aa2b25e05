package types

import (
	"strings"
	"time"
)

type EntityType string

const (
	EntityStudent   EntityType = "student"
	EntityProfessor EntityType = "professor"
)

// ParseEntityType accepts "student" or "professor" in any case.
func ParseEntityType(s string) (EntityType, bool) {
	switch t := EntityType(strings.ToLower(strings.TrimSpace(s))); t {
	case EntityStudent, EntityProfessor:
		return t, true
	}
	return "", false
}

type AccessStatus string

const (
	StatusGranted AccessStatus = "granted"
	StatusDenied  AccessStatus = "denied"
)

type AccessRequest struct {
	EntityType string `json:"entity_type" conform:"trim,lower" validate:"required,entitytype"`
	EntityID   *int   `json:"entity_id"`
	MaxRetries int    `json:"max_retries,omitempty" validate:"min=0,max=50"`
}

// AccessEvent is one persisted decision. It is also the payload of the
// "access" stream event.
type AccessEvent struct {
	ID         int64        `json:"id"`
	EventID    string       `json:"event_id"`
	EntityType EntityType   `json:"entity_type"`
	EntityID   int          `json:"entity_id"`
	Status     AccessStatus `json:"status"`
	Reason     string       `json:"reason,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

type AccessDecision struct {
	// OK mirrors Granted.
	OK         bool        `json:"ok"`
	Granted    bool        `json:"granted"`
	Reason     string      `json:"reason,omitempty"`
	EntityType EntityType  `json:"entity_type"`
	EntityID   int         `json:"entity_id"`
	MatchedID  *int        `json:"matched_id"`
	Log        AccessEvent `json:"log"`
	ServerTime string      `json:"server_time"`
}

type LogQuery struct {
	Period     string // day | week | month | all
	EntityType string
	Limit      int
	Offset     int
}

type LogPage struct {
	Items []AccessEvent `json:"items"`
	Count int           `json:"count"`
}
