// Package notify implements the admin-facing notification sinks spec.md
// §7 requires: "every retry notification goes to Reporter AND to the
// admin-email emitter configured per repo." AdminNotifier is the narrow
// contract both scheduler.Notifier (the pause-file watcher, spec.md
// §4.9) and the per-repo retry wrapper (spec.md §7) are satisfied by.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/arcyd/arcyd/internal/redaction"
)

// AdminNotifier delivers a single admin-facing message. Concrete
// implementations: LogNotifier (always present, zap-backed) and
// SMTPNotifier (configured per repo with an admin contact list).
type AdminNotifier interface {
	Notify(ctx context.Context, message string) error
}

// LogNotifier satisfies AdminNotifier by logging at warn level. It never
// fails, so it's safe to use as the sole notifier when no admin-email
// emitter is configured for a repo.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a LogNotifier. A nil logger falls back to zap.NewNop.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, message string) error {
	n.logger.Warn("admin notification", zap.String("message", message))
	return nil
}

// SMTPConfig configures an SMTPNotifier. There is no ecosystem
// de-facto mail-sending client used anywhere in the corpus, so this is
// built directly on net/smtp (see DESIGN.md).
type SMTPConfig struct {
	Host    string
	Port    int
	From    string
	To      []string
	Subject string
	Auth    smtp.Auth // optional; nil sends unauthenticated
}

// SMTPNotifier emails an admin contact list (spec.md §7's "admin-email
// emitter configured per repo").
type SMTPNotifier struct {
	cfg SMTPConfig
}

// NewSMTPNotifier builds an SMTPNotifier. Returns an error if the
// configuration has no recipients or no host, since a notifier that can
// never deliver anything is a configuration mistake, not a runtime one.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("notify: smtp host is required")
	}
	if len(cfg.To) == 0 {
		return nil, fmt.Errorf("notify: smtp notifier needs at least one recipient")
	}
	if cfg.Subject == "" {
		cfg.Subject = "arcyd admin notification"
	}
	return &SMTPNotifier{cfg: cfg}, nil
}

func (n *SMTPNotifier) Notify(_ context.Context, message string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(n.cfg.To, ", "))
	fmt.Fprintf(&body, "Subject: %s\r\n", n.cfg.Subject)
	body.WriteString("\r\n")
	body.WriteString(message)
	body.WriteString("\r\n")

	if err := smtp.SendMail(addr, n.cfg.Auth, n.cfg.From, n.cfg.To, []byte(body.String())); err != nil {
		return fmt.Errorf("notify: send mail via %s: %w", addr, err)
	}
	return nil
}

// Multi fans a single notification out to every notifier it wraps,
// collecting (not short-circuiting on) failures, so one repo's
// misconfigured SMTP settings never suppress the always-present
// LogNotifier's delivery. It also scrubs the message through a
// redaction.Engine first: a notification body is built from diff
// excerpts and commit messages pulled out of someone else's branch,
// and that text is never trusted not to contain a leaked token.
type Multi struct {
	notifiers []AdminNotifier
	redactor  *redaction.Engine
}

// NewMulti builds a Multi from one or more notifiers. Nil entries are
// skipped.
func NewMulti(notifiers ...AdminNotifier) *Multi {
	m := &Multi{redactor: redaction.NewEngine()}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *Multi) Notify(ctx context.Context, message string) error {
	message = m.redactor.Redact(message)

	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("notify: %d of %d notifiers failed: %s", len(errs), len(m.notifiers), strings.Join(msgs, "; "))
}
