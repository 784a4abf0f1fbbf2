package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-booking/internal/patients"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var twilioSendTracer = otel.Tracer("clinic.internal.otp.twilio_send")

// SMSSender delivers a text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// TwilioSender posts SMS messages using Twilio's REST API.
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTwilioSender builds a sender with a bounded HTTP client.
func NewTwilioSender(accountSID, authToken, from string, timeout time.Duration, logger *logging.Logger) *TwilioSender {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    "https://api.twilio.com",
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// SendSMS dispatches one message. It is not retried: a resend is an explicit
// user action bounded by the cooldown.
func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) error {
	if s.accountSID == "" || s.authToken == "" {
		return errors.New("otp: twilio credentials missing")
	}
	if s.from == "" {
		return errors.New("otp: twilio from number missing")
	}
	if strings.TrimSpace(to) == "" {
		return errors.New("otp: recipient required")
	}

	ctx, span := twilioSendTracer.Start(ctx, "otp.twilio.send")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.to", patients.MaskPhone(to)))

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", s.from)
	payload.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		span.RecordError(err)
		return err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("otp: twilio request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("otp: twilio send failed: %s", formatTwilioError(resp.StatusCode, raw))
		span.RecordError(err)
		return err
	}
	s.logger.Info("twilio sms sent", "to", patients.MaskPhone(to))
	return nil
}

type twilioAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}

// LogSender writes messages to the log instead of sending them. Used when no
// SMS provider is configured.
type LogSender struct {
	logger *logging.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendSMS(ctx context.Context, to, body string) error {
	s.logger.Debug("sms not sent, no provider configured", "to", patients.MaskPhone(to), "body", body)
	return nil
}
