package status

import "fmt"

// Status is a lifecycle state of a submitted send.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// IsValid reports whether the status is part of the lifecycle.
func (status Status) IsValid() bool {
	switch status {
	case StatusQueued, StatusSending, StatusSent, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (status Status) IsTerminal() bool {
	return status == StatusSent || status == StatusFailed
}

// CanTransitionTo reports whether moving from status to next is allowed.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusQueued:
		return next == StatusSending
	case StatusSending:
		return next == StatusQueued || next == StatusSent || next == StatusFailed
	case StatusSent, StatusFailed:
		return false
	default:
		return false
	}
}

// Parse validates and converts a raw string status.
func Parse(raw string) (Status, error) {
	status := Status(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}

	return status, nil
}

func (status Status) String() string {
	return string(status)
}
