// Package slack posts remediation events to a Slack incoming webhook.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/slack-go/slack"

	"github.com/capatazlib/go-medic/health"
)

// ErrMissingWebhook is returned by New when no webhook URL is given
var ErrMissingWebhook = errors.New("slack webhook url is required")

const (
	colorSuccess = "good"
	colorFailure = "danger"
)

// Sink is a health.Sink that posts events to Slack
type Sink struct {
	webhookURL  string
	channel     string
	username    string
	onlyFailure bool
	client      *http.Client
}

// Opt allows clients to tweak the behavior of a Sink
type Opt func(*Sink)

// WithChannel overrides the channel configured on the webhook
func WithChannel(channel string) Opt {
	return func(s *Sink) {
		s.channel = channel
	}
}

// WithUsername sets the name messages are posted with
func WithUsername(username string) Opt {
	return func(s *Sink) {
		s.username = username
	}
}

// WithAllEvents posts successful remediations too; by default only failures
// are posted
func WithAllEvents() Opt {
	return func(s *Sink) {
		s.onlyFailure = false
	}
}

// WithHTTPClient sets the client used to reach the webhook
func WithHTTPClient(client *http.Client) Opt {
	return func(s *Sink) {
		s.client = client
	}
}

// New creates a Sink for the given webhook URL
func New(webhookURL string, opts ...Opt) (*Sink, error) {
	if webhookURL == "" {
		return nil, ErrMissingWebhook
	}
	s := &Sink{
		webhookURL:  webhookURL,
		username:    "medic",
		onlyFailure: true,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, optFn := range opts {
		optFn(s)
	}
	return s, nil
}

// Record posts the event
func (s *Sink) Record(ctx context.Context, ev health.RemediationEvent) error {
	if s.onlyFailure && ev.Success {
		return nil
	}
	msg := s.message(ev)
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.client, msg); err != nil {
		return fmt.Errorf("could not post event to slack: %w", err)
	}
	return nil
}

func (s *Sink) message(ev health.RemediationEvent) *slack.WebhookMessage {
	color := colorSuccess
	if !ev.Success {
		color = colorFailure
	}

	fields := []slack.AttachmentField{
		{Title: "Service", Value: ev.Service, Short: true},
		{Title: "Action", Value: ev.Action.String(), Short: true},
		{Title: "Attempt", Value: strconv.FormatUint(uint64(ev.Attempt), 10), Short: true},
		{Title: "Outcome", Value: ev.Outcome(), Short: true},
	}
	if ev.ServerID != "" {
		fields = append(fields, slack.AttachmentField{Title: "Server", Value: ev.ServerID, Short: true})
	}
	if ev.Error != "" {
		fields = append(fields, slack.AttachmentField{Title: "Error", Value: ev.Error})
	}

	attachment := slack.Attachment{
		Color:  color,
		Title:  ev.Issue,
		Fields: fields,
		Footer: ev.ID.String(),
		Ts:     json.Number(strconv.FormatInt(ev.Created.Unix(), 10)),
	}
	if ev.Detail != "" {
		attachment.Text = "```" + ev.Detail + "```"
	}

	return &slack.WebhookMessage{
		Channel:     s.channel,
		Username:    s.username,
		Text:        ev.Line(),
		Attachments: []slack.Attachment{attachment},
	}
}
