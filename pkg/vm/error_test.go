package vm

import (
	"errors"
	"testing"

	"github.com/zurustar/blox/pkg/value"
)

func TestParseErrorScheme(t *testing.T) {
	tests := []struct {
		input  string
		want   ErrorScheme
		wantOK bool
	}{
		{"hard", Hard, true},
		{"", Hard, true},
		{"soft", Soft, true},
		{"loud", Hard, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseErrorScheme(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseErrorScheme(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestErrorScheme_String(t *testing.T) {
	if Hard.String() != "hard" || Soft.String() != "soft" {
		t.Errorf("unexpected names: %s, %s", Hard, Soft)
	}
}

func TestErrCorruptStack_IsInternal(t *testing.T) {
	if !value.IsType(ErrCorruptStack, value.ErrorInternal) {
		t.Errorf("expected an internal error, got %v", ErrCorruptStack)
	}
	if errors.Is(ErrCorruptStack, ErrStopped) {
		t.Error("a corrupt stack is not a stop")
	}
}
