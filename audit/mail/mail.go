// Package mail emails failed remediations to the operators of a host.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomail "gopkg.in/mail.v2"

	"github.com/capatazlib/go-medic/health"
)

var (
	// ErrMissingRecipients is returned by New when no recipient is given
	ErrMissingRecipients = errors.New("mail sink requires at least one recipient")
	// ErrMissingSender is returned by New when no from address is given
	ErrMissingSender = errors.New("mail sink requires a from address")
)

// Sender delivers mail messages; *gomail.Dialer implements it
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Config contains the SMTP settings of a Sink
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	// StartTLS requires the server to support STARTTLS
	StartTLS bool
	Timeout  time.Duration
}

// NewDialer returns the SMTP dialer for the config
func (cfg Config) NewDialer() *gomail.Dialer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.StartTLS {
		dialer.StartTLSPolicy = gomail.MandatoryStartTLS
	}
	if cfg.Timeout > 0 {
		dialer.Timeout = cfg.Timeout
	}
	return dialer
}

// Sink is a health.Sink that emails failed remediations
type Sink struct {
	from   string
	to     []string
	sender Sender
}

// New creates a Sink that delivers through the given sender; a nil sender
// uses the SMTP dialer of the config
func New(cfg Config, sender Sender) (*Sink, error) {
	if cfg.From == "" {
		return nil, ErrMissingSender
	}
	if len(cfg.To) == 0 {
		return nil, ErrMissingRecipients
	}
	if sender == nil {
		sender = cfg.NewDialer()
	}
	return &Sink{from: cfg.From, to: cfg.To, sender: sender}, nil
}

// Record emails the event when the remediation failed
func (s *Sink) Record(ctx context.Context, ev health.RemediationEvent) error {
	if ev.Success {
		return nil
	}
	msg := s.message(ev)

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- s.sender.DialAndSend(msg)
	}()

	select {
	case err := <-doneCh:
		if err != nil {
			return fmt.Errorf("could not email event for service '%s': %w", ev.Service, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("could not email event for service '%s': %w", ev.Service, ctx.Err())
	}
}

// Subject returns the subject line of the email for the event
func Subject(ev health.RemediationEvent) string {
	host := ev.ServerID
	if host == "" {
		host = "unknown host"
	}
	return fmt.Sprintf("[medic] %s failed on %s (%s)", ev.Action, ev.Service, host)
}

func (s *Sink) message(ev health.RemediationEvent) *gomail.Message {
	var body strings.Builder
	fmt.Fprintf(&body, "Service: %s\n", ev.Service)
	fmt.Fprintf(&body, "Issue: %s\n", ev.Issue)
	fmt.Fprintf(&body, "Action: %s (attempt %d)\n", ev.Action, ev.Attempt)
	fmt.Fprintf(&body, "Time: %s\n", ev.Created.UTC().Format(time.RFC3339))
	if ev.Error != "" {
		fmt.Fprintf(&body, "Error: %s\n", ev.Error)
	}
	if ev.Detail != "" {
		fmt.Fprintf(&body, "\n%s\n", ev.Detail)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", s.to...)
	msg.SetHeader("Subject", Subject(ev))
	msg.SetBody("text/plain", body.String())
	return msg
}
