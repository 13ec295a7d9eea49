package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid selector"), false},
		{"explicit", NewTransientError(errors.New("overloaded")), true},
		{"wrapped explicit", eris.Wrap(NewTransientError(errors.New("x")), "capture"), true},
		{"econnreset", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"econnrefused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"net timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"chrome reset", errors.New("navigation failed: net::ERR_CONNECTION_RESET"), true},
		{"chrome timeout", errors.New("net::ERR_TIMED_OUT"), true},
		{"chrome dns", errors.New("net::ERR_NAME_NOT_RESOLVED"), false},
		{"target closed", errors.New("cdp: Target closed"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	te := NewTransientError(inner)
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, "inner", te.Error())
}
