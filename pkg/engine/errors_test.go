package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		err   error
		check func(error) bool
		name  string
	}{
		{NewPreconditionError("web1", "no state"), IsPrecondition, "precondition"},
		{NewUnknownFactError("web1", "ghost"), IsUnknownFact, "unknown fact"},
		{NewFactUnavailableError("web1", "os_version"), IsFactUnavailable, "fact unavailable"},
		{NewUnsupportedError("web1", "os_version", "create"), IsUnsupported, "unsupported"},
	}

	for _, tt := range tests {
		if !tt.check(tt.err) {
			t.Errorf("%s: classification check failed for %v", tt.name, tt.err)
		}
		// Each predicate must reject the other kinds.
		for _, other := range tests {
			if other.name == tt.name {
				continue
			}
			if tt.check(other.err) {
				t.Errorf("%s predicate matched %s error", tt.name, other.name)
			}
		}
	}
}

func TestErrorChecksSurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("reading fact: %w", NewUnknownFactError("web1", "ghost"))
	if !IsUnknownFact(wrapped) {
		t.Error("classification must survive wrapping")
	}

	if IsUnknownFact(errors.New("plain")) {
		t.Error("plain errors must not classify")
	}
}

func TestErrorMessageCarriesContext(t *testing.T) {
	err := NewUnknownFactError("web1", "ghost")
	msg := err.Error()
	if !strings.Contains(msg, "ghost") || !strings.Contains(msg, "web1") {
		t.Errorf("message missing context: %q", msg)
	}
	if !strings.Contains(msg, string(ErrorKindUnknownFact)) {
		t.Errorf("message missing kind: %q", msg)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := &Error{Kind: ErrorKindPrecondition, Message: "m", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("Unwrap chain broken")
	}
}
