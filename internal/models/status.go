package models

import (
	"encoding/json"
	"strings"
)

type Status string

const (
	StatusReceived  Status = "Received"
	StatusPreparing Status = "Preparing"
	StatusReady     Status = "Ready"
	StatusServed    Status = "Served"
	StatusClosed    Status = "Closed"
)

var lifecycle = []Status{StatusReceived, StatusPreparing, StatusReady, StatusServed, StatusClosed}

// ParseStatus maps any casing of a known status to its canonical value.
// Unknown values are returned unchanged.
func ParseStatus(s string) Status {
	trimmed := strings.TrimSpace(s)
	for _, st := range lifecycle {
		if strings.EqualFold(trimmed, string(st)) {
			return st
		}
	}
	return Status(trimmed)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseStatus(raw)
	return nil
}

// Rank is the position of s in the lifecycle, or -1 for an unknown status.
func (s Status) Rank() int {
	for i, st := range lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Status) Known() bool {
	return s.Rank() >= 0
}

func (s Status) IsTerminal() bool {
	return s == StatusServed || s == StatusClosed
}

// IsActive reports whether s belongs on the kitchen board.
func (s Status) IsActive() bool {
	switch s {
	case StatusReceived, StatusPreparing, StatusReady:
		return true
	}
	return false
}

// NextStatus returns the single forward step from s. Terminal and unknown
// statuses map to themselves.
func NextStatus(s Status) Status {
	switch s {
	case StatusReceived:
		return StatusPreparing
	case StatusPreparing:
		return StatusReady
	case StatusReady:
		return StatusServed
	}
	return s
}

// CanTransition reports whether moving from -> to never regresses the
// lifecycle.
func CanTransition(from, to Status) bool {
	if !to.Known() {
		return false
	}
	if !from.Known() {
		return true
	}
	return to.Rank() >= from.Rank()
}
