package types

import "time"

// Entity is a student or professor. ID doubles as the reader slot the
// person's fingerprint is stored in.
type Entity struct {
	ID                  int        `json:"id"`
	Type                EntityType `json:"entity_type"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name,omitempty"`
	Email               string     `json:"email"`
	Affiliation         string     `json:"affiliation,omitempty"` // major or department
	Number              string     `json:"number,omitempty"`      // student or employee number
	FingerprintEnrolled bool       `json:"fingerprint_enrolled"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type NewEntity struct {
	FirstName          string `json:"first_name" conform:"trim" validate:"required,max=80"`
	LastName           string `json:"last_name" conform:"trim" validate:"max=80"`
	Email              string `json:"email" conform:"email" validate:"required,email,max=120"`
	Affiliation        string `json:"affiliation" conform:"trim" validate:"max=120"`
	Number             string `json:"number" conform:"trim" validate:"max=64"`
	FingerprintRetries int    `json:"fingerprint_retries,omitempty" validate:"min=0,max=10"`
}

type CaptureRequest struct {
	Entity     string `json:"entity" conform:"trim,lower" validate:"required,entitytype"`
	EntityID   *int   `json:"entity_id"`
	MaxRetries int    `json:"max_retries,omitempty" validate:"min=0,max=10"`
}

type CaptureResponse struct {
	OK       bool   `json:"ok"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts"`
}

type ConnectRequest struct {
	Port     string `json:"port" conform:"trim" validate:"required"`
	Baudrate int    `json:"baudrate,omitempty" validate:"min=0"`
}
