package email

import (
	"testing"

	"gopkg.in/gomail.v2"
)

// fakeDialer lets tests control DialAndSend's outcome without a real
// network dial.
type fakeDialer struct {
	fn func(TransportConfig) error
	cfg TransportConfig
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	return f.fn(f.cfg)
}

// SetDialerFactoryForTest overrides the package-level dial hook for the
// duration of t, restoring the original on cleanup.
func SetDialerFactoryForTest(t *testing.T, fn func(TransportConfig) error) {
	t.Helper()
	orig := dial
	dial = func(c TransportConfig) dialer {
		return &fakeDialer{fn: fn, cfg: c}
	}
	t.Cleanup(func() { dial = orig })
}
