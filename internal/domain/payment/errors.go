package payment

import (
	"errors"
	"fmt"
	"strings"
)

// TransientError marks a failure worth retrying: timeouts, connection
// resets, provider 5xx. The caller must not record a final outcome for it.
type TransientError struct {
	Reason string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient payment error: %s", e.Reason)
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent payment error: %s", e.Reason)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ClassifyReason maps a failure reason reported by the client-side payment
// SDK onto the taxonomy. The SDK gives free text, so this is a heuristic:
// anything that smells like a network hiccup is transient, the rest is
// treated as permanent and escalated.
func ClassifyReason(reason string) error {
	lower := strings.ToLower(reason)
	for _, marker := range []string{"timeout", "timed out", "network", "unreachable", "connection", "temporarily"} {
		if strings.Contains(lower, marker) {
			return &TransientError{Reason: reason}
		}
	}
	return &PermanentError{Reason: reason}
}
