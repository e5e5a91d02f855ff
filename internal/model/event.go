package model

import (
	"fmt"
	"strings"
)

type Weights struct {
	Time    int `json:"time"`
	User    int `json:"user"`
	Content int `json:"content"`
}

func (w Weights) Sum() int {
	return w.Time + w.User + w.Content
}

// Event is the reconstruction request: a point in time, the people involved
// and how the three relevance dimensions are weighed.
type Event struct {
	EventName     string   `json:"event_name"`
	EventTime     string   `json:"event_time"`
	InternalUsers []string `json:"internal_users"`
	ExternalUsers []string `json:"external_users"`
	Relevance     int      `json:"relevance"`
	Weights       Weights  `json:"weights"`
	AICheckRecord bool     `json:"ai_check_record"`
}

// Validate checks the event shape. Strict additionally requires the weights
// to sum to 100.
func (e *Event) Validate(strict bool) error {
	if strings.TrimSpace(e.EventName) == "" {
		return fmt.Errorf("%w: event_name is required", ErrInvalidEvent)
	}
	if _, err := ParseTimestamp(e.EventTime); err != nil {
		return fmt.Errorf("%w: event_time: %v", ErrInvalidEvent, err)
	}
	if e.Relevance < 0 || e.Relevance > 100 {
		return fmt.Errorf("%w: relevance %d outside [0,100]", ErrInvalidEvent, e.Relevance)
	}
	if e.Weights.Time < 0 || e.Weights.User < 0 || e.Weights.Content < 0 {
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidEvent)
	}
	if strict && e.Weights.Sum() != 100 {
		return fmt.Errorf("%w: weights sum to %d, want 100", ErrInvalidEvent, e.Weights.Sum())
	}
	return nil
}

func (e *Event) HasInternalUser(id string) bool {
	return contains(e.InternalUsers, id)
}

func (e *Event) HasExternalUser(name string) bool {
	return contains(e.ExternalUsers, name)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
