// Package notify alerts a human operator when a mutation fails permanently.
//
// A kiosk in the field has nobody watching its logs; an SMS to the site
// operator is how an exhausted-retry or rejected attendance punch gets seen.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/models"
)

// Notifier delivers operator alerts.
type Notifier interface {
	SendAlert(ctx context.Context, body string) error
}

// Opts holds configuration options for the Twilio notifier.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
}

// Option defines a configuration option for the Twilio notifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFrom sets the sending phone number.
func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// WithTo sets the operator phone number that receives alerts.
func WithTo(to string) Option {
	return func(o *Opts) { o.To = to }
}

// TwilioNotifier sends operator alerts as SMS via the Twilio REST API.
type TwilioNotifier struct {
	client *twilio.RestClient
	from   string
	to     string
}

// NewTwilioNotifier creates a notifier, falling back to TWILIO_* environment
// variables for anything not provided via options.
func NewTwilioNotifier(opts ...Option) (*TwilioNotifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.To == "" {
		cfg.To = os.Getenv("TWILIO_OPERATOR_NUMBER")
	}
	slog.Debug("Twilio notifier config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "",
		"To_set", cfg.To != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" || cfg.To == "" {
		return nil, fmt.Errorf("from and operator numbers must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &TwilioNotifier{client: client, from: cfg.From, to: cfg.To}, nil
}

// SendAlert sends an SMS to the configured operator number.
func (n *TwilioNotifier) SendAlert(ctx context.Context, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(n.to)
	params.SetFrom(n.from)
	params.SetBody(body)

	_, err := n.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendAlert failed", "to", n.to, "error", err)
		return fmt.Errorf("failed to send alert to %s: %w", n.to, err)
	}

	slog.Debug("Twilio alert sent", "to", n.to)
	return nil
}

// FormatFailureAlert renders a permanent-failure event as an operator message.
func FormatFailureAlert(ev models.SyncEvent) string {
	msg := fmt.Sprintf("HRM sync: mutation %s failed permanently", ev.MutationID)
	if ev.Subject != "" {
		msg += fmt.Sprintf(" (subject %s)", ev.Subject)
	}
	if ev.Error != "" {
		msg += ": " + ev.Error
	}
	msg += fmt.Sprintf(". %d mutations still queued.", ev.QueueDepth)
	return msg
}

// AlertOnPermanentFailure adapts a notifier into a sync event callback that
// alerts on terminal failures and ignores everything else.
func AlertOnPermanentFailure(n Notifier) func(models.SyncEvent) {
	return func(ev models.SyncEvent) {
		if ev.Type != models.SyncEventFailedPermanent {
			return
		}
		if err := n.SendAlert(context.Background(), FormatFailureAlert(ev)); err != nil {
			slog.Error("AlertOnPermanentFailure: alert delivery failed", "mutationID", ev.MutationID, "error", err)
		}
	}
}

// MockNotifier records alerts for tests.
type MockNotifier struct {
	Alerts []string
}

// NewMockNotifier creates an empty mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{Alerts: []string{}}
}

func (m *MockNotifier) SendAlert(ctx context.Context, body string) error {
	m.Alerts = append(m.Alerts, body)
	return nil
}
