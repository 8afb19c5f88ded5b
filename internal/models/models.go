package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
)

func (p Platform) Valid() bool {
	return p == PlatformTwitter || p == PlatformInstagram
}

// Status is the raw text of the status column. Values are written in Spanish
// because operators maintain the sheets by hand.
type Status string

const (
	StatusPending   Status = "pendiente"
	StatusSent      Status = "enviado"
	StatusDiscarded Status = "descartado"
)

// Eligible reports whether a row carrying this status may still be published:
// pending (in either language) or blank.
func (s Status) Eligible() bool {
	v := strings.ToLower(strings.TrimSpace(string(s)))
	return v == "" || v == string(StatusPending) || v == "pending"
}

// Row is one queue entry. Position is the 1-based sheet row and the only key
// used for status writes.
type Row struct {
	Identifier string `json:"identifier"`
	Text       string `json:"text"`
	Status     Status `json:"status"`
	Position   int    `json:"position"`
}

type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerRemote    Trigger = "remote"
)

// Outcome is the tagged result of one publish call.
type Outcome struct {
	Succeeded bool
	Message   string
}

func Success(message string) Outcome { return Outcome{Succeeded: true, Message: message} }
func Failure(message string) Outcome { return Outcome{Message: message} }

// Event is the record emitted for every coordinator invocation.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Platform   Platform  `json:"platform"`
	Trigger    Trigger   `json:"trigger"`
	State      string    `json:"state"`
	Position   int       `json:"position,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
	Effect     string    `json:"effect,omitempty"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}
