package email_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskgrid/dispatch/internal/adapter/email"
)

type fakeLoader struct {
	cfg *email.ModuleConfig
	err error
}

func (f *fakeLoader) LoadModuleConfig(ctx context.Context, module string) (*email.ModuleConfig, error) {
	return f.cfg, f.err
}

type fakeLogStore struct {
	attempts []string
}

func (f *fakeLogStore) LogAttempt(ctx context.Context, module, to, status, detail string) error {
	f.attempts = append(f.attempts, status+":"+detail)
	return nil
}

func TestEmail_SendSuccess_MainTransport(t *testing.T) {
	logs := &fakeLogStore{}
	loader := &fakeLoader{cfg: &email.ModuleConfig{
		Module: "Global",
		Main:   email.TransportConfig{Host: "smtp.example.com", Port: 587},
	}}
	a := email.New(loader, logs, nil)
	email.SetDialerFactoryForTest(t, func(email.TransportConfig) error { return nil })

	res, err := a.Send(context.Background(), email.SendRequest{To: "a@example.com", Subject: "hi", Text: "body"})
	require.NoError(t, err)
	require.False(t, res.UsedBackup)
}

func TestEmail_FailoverToBackup(t *testing.T) {
	logs := &fakeLogStore{}
	loader := &fakeLoader{cfg: &email.ModuleConfig{
		Module:          "Global",
		FailoverEnabled: true,
		Main:            email.TransportConfig{Host: "main.example.com"},
		Backup:          &email.TransportConfig{Host: "backup.example.com"},
	}}
	a := email.New(loader, logs, nil)

	calls := 0
	email.SetDialerFactoryForTest(t, func(c email.TransportConfig) error {
		calls++
		if c.Host == "main.example.com" {
			return errors.New("connection refused")
		}
		return nil
	})

	res, err := a.Send(context.Background(), email.SendRequest{To: "a@example.com", Subject: "hi", Text: "body"})
	require.NoError(t, err)
	require.True(t, res.UsedBackup)
}

func TestEmail_BothTransportsFail(t *testing.T) {
	logs := &fakeLogStore{}
	loader := &fakeLoader{cfg: &email.ModuleConfig{
		Module:          "Global",
		FailoverEnabled: true,
		Main:            email.TransportConfig{Host: "main.example.com"},
		Backup:          &email.TransportConfig{Host: "backup.example.com"},
	}}
	a := email.New(loader, logs, nil)
	email.SetDialerFactoryForTest(t, func(email.TransportConfig) error { return errors.New("down") })

	_, err := a.Send(context.Background(), email.SendRequest{To: "a@example.com", Subject: "hi", Text: "body"})
	require.Error(t, err)
}
