package model

import (
	"fmt"
	"time"
)

// Record is one communication artifact as returned by the upstream record API.
// Channel is stamped by the fetcher, the upstream does not send it.
type Record struct {
	ID            string  `json:"id"`
	Channel       Channel `json:"channel"`
	StartTime     string  `json:"startTime"`
	EndTime       string  `json:"endTime,omitempty"`
	UserID        string  `json:"userId"`
	OtherUserName string  `json:"otherUserName,omitempty"`
	Receiver      string  `json:"receiver,omitempty"`
	ToName        string  `json:"toName,omitempty"`
	Content       string  `json:"content,omitempty"`
}

// EffectiveEndTime is EndTime, or StartTime when the record has no end.
func (r Record) EffectiveEndTime() string {
	if r.EndTime == "" {
		return r.StartTime
	}
	return r.EndTime
}

// Interval parses the record's start and end.
func (r Record) Interval() (start, end time.Time, err error) {
	start, err = ParseTimestamp(r.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("record %s start: %w", r.ID, err)
	}
	end, err = ParseTimestamp(r.EffectiveEndTime())
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("record %s end: %w", r.ID, err)
	}
	return start, end, nil
}
