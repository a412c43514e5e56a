package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type StatusType int

const (
	StatusInfo StatusType = iota
	StatusSuccess
	StatusWarning
	StatusError
)

// Message is published by the orchestration to whoever listens:
// progress bars, history store, log.
type Message struct {
	ID          uuid.UUID           // uuid
	Status      StatusType          // Status Success/Error/Info...
	When        time.Time           // creation / update time
	SpecID      string              // Transfer concerned by the message
	Text        string              // Textual message
	Progression *ProgressionPayload // When message is a progression
	Result      *TransferResult     // When message carries a terminal result
}

func NewMessage(t string) *Message {
	return &Message{
		When: time.Now(),
		ID:   uuid.New(),
		Text: t,
	}
}

func (m *Message) SetStatus(s StatusType) *Message { m.Status = s; return m }
func (m *Message) SetText(t string) *Message       { m.Text = t; return m }
func (m *Message) SetSpecID(id string) *Message    { m.SpecID = id; return m }

func (m Message) UUID() uuid.UUID { return m.ID }
func (m Message) String() string {
	if m.Progression != nil {
		return m.Text + " " + m.Progression.String()
	}
	return m.Text
}

// NewResultMessage wraps a terminal result
func NewResultMessage(r TransferResult) *Message {
	m := NewMessage(r.String()).SetSpecID(r.SpecID)
	switch r.Final {
	case FinalSuccess:
		m.Status = StatusSuccess
	case FinalSkipped:
		m.Status = StatusInfo
	case FinalCancelled:
		m.Status = StatusWarning
	default:
		m.Status = StatusError
	}
	m.Result = &r
	return m
}

// ProgressionPayload is a progress sample of a running transfer
type ProgressionPayload struct {
	Current int64         // Bytes written
	Total   int64         // Expected bytes, 0 when unknown
	Percent float64       // As reported by the accelerator, -1 when unknown
	Rate    float64       // Bytes per second, smoothed
	ETA     time.Duration // Estimated time to completion, 0 when unknown
}

func NewProgression(specID string, p ProgressionPayload) *Message {
	return &Message{
		ID:          uuid.New(),
		When:        time.Now(),
		SpecID:      specID,
		Text:        specID,
		Progression: &p,
	}
}

func (p ProgressionPayload) String() string {
	pc := p.Percent
	if pc < 0 && p.Total > 0 {
		pc = float64(p.Current) * 100.0 / float64(p.Total)
	}
	if pc < 0 {
		pc = 0
	}
	return fmt.Sprintf("%3.1f%%", pc)
}
