package flow

import (
	"encoding/json"
	"fmt"
)

// StatusType classifies the outcome of a pipeline evaluation.
type StatusType int

const (
	// Success means the result is usable without caveats.
	Success StatusType = iota
	// Warning means the result is usable but carries a caveat.
	Warning
	// Error means the result must not be trusted.
	Error
	// Pending means the result is deferred or a replay of an earlier result.  It is not
	// an error.
	Pending
)

func (t StatusType) String() string {
	switch t {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Pending:
		return "pending"
	}
	return "unknown"
}

// MarshalJSON encodes the type by name.
func (t StatusType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a type name written by MarshalJSON.
func (t *StatusType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, candidate := range []StatusType{Success, Warning, Error, Pending} {
		if candidate.String() == name {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown status type %q", name)
}

// Status is the tagged outcome of an evaluation with an optional human-readable text.
// The zero value is a plain success.
type Status struct {
	Type StatusType `json:"type"`
	Text string     `json:"text,omitempty"`
}

// NewStatus returns a status of the given type and text.
func NewStatus(t StatusType, text string) Status {
	return Status{Type: t, Text: text}
}

// PendingStatus returns a status marking a deferred or replayed result.
func PendingStatus() Status {
	return Status{Type: Pending}
}

// ErrorStatus returns an error status carrying the message.
func ErrorStatus(text string) Status {
	return Status{Type: Error, Text: text}
}

// WarningStatus returns a warning status carrying the message.
func WarningStatus(text string) Status {
	return Status{Type: Warning, Text: text}
}

// IsPending reports whether the status is Pending.
func (s Status) IsPending() bool {
	return s.Type == Pending
}

// IsError reports whether the status is Error.
func (s Status) IsError() bool {
	return s.Type == Error
}

func (s Status) String() string {
	if s.Text == "" {
		return s.Type.String()
	}
	return s.Type.String() + ": " + s.Text
}
