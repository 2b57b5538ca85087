// Package email implements the Email Adapter (C8): primary/backup SMTP
// transports with health probing, spec.md §4.6, built on gopkg.in/gomail.v2.
// The adapter's structure — transport pair, useBackup flag scoped to the
// instance rather than a package global, health probe — follows spec.md
// §4.6 and §9's Design Note directly.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/gomail.v2"

	"github.com/taskgrid/dispatch/internal/adapter"
	"github.com/taskgrid/dispatch/internal/apperror"
)

// TransportConfig is the per-module (or Global fallback) SMTP connection
// config spec.md §4.6 "Init" loads.
type TransportConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// ModuleConfig is the per-module service config: whether failover and
// admin notification are enabled, the main/backup transport configs, and
// the admin address to notify.
type ModuleConfig struct {
	Module            string
	FailoverEnabled   bool
	NotifyOnFailover  bool
	AdminAddress      string
	Main              TransportConfig
	Backup            *TransportConfig
}

// ConfigLoader loads per-module config, falling back to a Global row if
// the module has none — spec.md §4.6 "load per-module ... config; fall
// back to the Global config if absent" and the GLOSSARY's "Module" entry.
type ConfigLoader interface {
	LoadModuleConfig(ctx context.Context, module string) (*ModuleConfig, error)
}

// LogStore records send attempts for audit, spec.md §4.6 "record a failed
// attempt to the log store".
type LogStore interface {
	LogAttempt(ctx context.Context, module, to, status, detail string) error
}

// SendRequest is {to, subject, html|text, optional module}, spec.md §4.6
// "Send".
type SendRequest struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Module  string
}

// SendResult is {messageId, response, usedBackup}.
type SendResult struct {
	MessageID  string `json:"messageId"`
	Response   string `json:"response"`
	UsedBackup bool   `json:"usedBackup"`
}

// dialer is the subset of *gomail.Dialer the adapter needs, narrowed for
// testability.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Adapter holds two SMTP transports (main, backup) and a useBackup flag
// scoped to this instance — not a package-level global, per spec.md §9's
// Design Note and the Open Question on module-switch concurrency recorded
// in DESIGN.md.
type Adapter struct {
	mu sync.Mutex

	loader ConfigLoader
	logs   LogStore
	logger *slog.Logger

	currentModule string
	cfg           *ModuleConfig
	main          dialer
	backup        dialer
	useBackup     bool
}

var _ adapter.Adapter = (*jobAdapter)(nil)

// New creates an Adapter bound to a ConfigLoader and LogStore.
func New(loader ConfigLoader, logs LogStore, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{loader: loader, logs: logs, logger: logger}
}

// dial is overridden in tests to avoid real network dials.
var dial = func(c TransportConfig) dialer {
	return gomail.NewDialer(c.Host, c.Port, c.Username, c.Password)
}

// Init loads config for module and (re)builds transports, spec.md §4.6
// "Init". Caller holds a.mu.
func (a *Adapter) init(ctx context.Context, module string) error {
	cfg, err := a.loader.LoadModuleConfig(ctx, module)
	if err != nil {
		return fmt.Errorf("load module config for %q: %w", module, err)
	}

	a.currentModule = module
	a.cfg = cfg
	a.useBackup = false

	var mainErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				mainErr = fmt.Errorf("build main transport: %v", r)
			}
		}()
		a.main = dial(cfg.Main)
	}()

	if cfg.FailoverEnabled && cfg.Backup != nil {
		a.backup = dial(*cfg.Backup)
	} else {
		a.backup = nil
	}

	if mainErr != nil {
		if cfg.FailoverEnabled && a.backup != nil {
			a.logger.Warn("main transport failed to build, serving exclusively from backup",
				slog.String("module", module), slog.String("error", mainErr.Error()))
			a.main = nil
			a.useBackup = true
			return nil
		}
		return mainErr
	}
	return nil
}

// Send delivers an email per spec.md §4.6's algorithm.
func (a *Adapter) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	module := req.Module
	if module == "" {
		module = "Global"
	}
	if module != a.currentModule {
		if err := a.init(ctx, module); err != nil {
			return nil, apperror.Wrap(apperror.KindAdapterFailure, "email adapter init failed", err)
		}
	}

	active, usedBackup := a.main, false
	if a.useBackup {
		active, usedBackup = a.backup, true
	}
	if active == nil {
		a.logAttempt(ctx, module, req.To, "failed", "no transport available")
		return nil, apperror.New(apperror.KindAdapterFailure, "no email transport available")
	}

	msg := buildMessage(req)
	if err := active.DialAndSend(msg); err != nil {
		if !usedBackup && a.cfg.FailoverEnabled && a.backup != nil {
			a.logAttempt(ctx, module, req.To, "failed", "main: "+err.Error())
			a.useBackup = true

			if ferr := a.backup.DialAndSend(msg); ferr != nil {
				a.logAttempt(ctx, module, req.To, "failed", "backup: "+ferr.Error())
				return nil, apperror.Wrap(apperror.KindAdapterFailure, "main and backup both failed",
					fmt.Errorf("main: %v, backup: %v", err, ferr))
			}

			if a.cfg.NotifyOnFailover && a.cfg.AdminAddress != "" {
				a.notifyAdmin(ctx, "email failover engaged for module "+module)
			}

			a.logAttempt(ctx, module, req.To, "sent", "via backup")
			return &SendResult{UsedBackup: true}, nil
		}

		a.logAttempt(ctx, module, req.To, "failed", err.Error())
		return nil, apperror.Wrap(apperror.KindAdapterFailure, "email send failed", err)
	}

	a.logAttempt(ctx, module, req.To, "sent", "via "+transportLabel(usedBackup))
	return &SendResult{UsedBackup: usedBackup}, nil
}

// HealthProbe verifies the main transport; if it now succeeds, clears
// useBackup and notifies the admin of recovery, spec.md §4.6 "Health
// probe". Called from the worker runtime when degraded.
func (a *Adapter) HealthProbe(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.main == nil || !a.useBackup {
		return nil
	}

	probe := gomail.NewMessage()
	if err := a.main.DialAndSend(probe); err != nil {
		return apperror.Wrap(apperror.KindTransient, "main transport still degraded", err)
	}

	a.useBackup = false
	if a.cfg != nil && a.cfg.NotifyOnFailover && a.cfg.AdminAddress != "" {
		a.notifyAdmin(ctx, "email main transport recovered for module "+a.currentModule)
	}
	return nil
}

func (a *Adapter) notifyAdmin(ctx context.Context, body string) {
	msg := gomail.NewMessage()
	msg.SetHeader("To", a.cfg.AdminAddress)
	msg.SetHeader("Subject", "Dispatch email adapter notice")
	msg.SetBody("text/plain", body)
	if a.backup != nil {
		if err := a.backup.DialAndSend(msg); err != nil {
			a.logger.Warn("admin notification send failed", slog.String("error", err.Error()))
		}
	}
}

func (a *Adapter) logAttempt(ctx context.Context, module, to, status, detail string) {
	if a.logs == nil {
		return
	}
	if err := a.logs.LogAttempt(ctx, module, to, status, detail); err != nil {
		a.logger.Warn("email log store write failed", slog.String("error", err.Error()))
	}
}

func buildMessage(req SendRequest) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("To", req.To)
	m.SetHeader("Subject", req.Subject)
	if req.HTML != "" {
		m.SetBody("text/html", req.HTML)
	} else {
		m.SetBody("text/plain", req.Text)
	}
	return m
}

func transportLabel(usedBackup bool) string {
	if usedBackup {
		return "backup"
	}
	return "main"
}

// jobAdapter adapts *Adapter to the closed-union adapter.Adapter interface
// the worker runtime dispatches through, unmarshaling the job payload into
// SendRequest.
type jobAdapter struct {
	*Adapter
}

// AsJobAdapter wraps a as an adapter.Adapter for registry.Register.
func AsJobAdapter(a *Adapter) adapter.Adapter {
	return &jobAdapter{Adapter: a}
}

func (j *jobAdapter) Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var req SendRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, "invalid email payload", err)
	}
	res, err := j.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal email result: %w", err)
	}
	return b, nil
}
