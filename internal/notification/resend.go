package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"storyledger/internal/platform/metrics"
)

const defaultEndpoint = "https://api.resend.com/emails"

// ResendDispatcher sends via the Resend HTTP API. When no API key is
// configured it degrades to a simulated send so non-production environments
// exercise the full flow without delivering mail.
type ResendDispatcher struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
	log      *slog.Logger
	metrics  *metrics.Metrics
}

type ResendOption func(*ResendDispatcher)

// WithEndpoint overrides the API endpoint; tests point it at a local server.
func WithEndpoint(url string) ResendOption {
	return func(d *ResendDispatcher) { d.endpoint = url }
}

func NewResendDispatcher(apiKey, fromAddr, fromName string, log *slog.Logger, m *metrics.Metrics, opts ...ResendOption) *ResendDispatcher {
	d := &ResendDispatcher{
		endpoint: defaultEndpoint,
		apiKey:   apiKey,
		from:     fmt.Sprintf("%s <%s>", fromName, fromAddr),
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
		metrics:  m,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (d *ResendDispatcher) Dispatch(ctx context.Context, req Request) Result {
	if d.apiKey == "" {
		return d.simulate(ctx, req)
	}

	msg := render(req)
	body, err := json.Marshal(resendPayload{
		From:    d.from,
		To:      []string{req.Recipient.Email},
		Subject: msg.Subject,
		Text:    msg.Text,
	})
	if err != nil {
		return d.failed(ctx, req, fmt.Errorf("marshal email payload: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return d.failed(ctx, req, fmt.Errorf("build email request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return d.failed(ctx, req, fmt.Errorf("send email: %w", err))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var parsed resendResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return d.failed(ctx, req, fmt.Errorf("email provider returned %d: %s", resp.StatusCode, parsed.Message))
	}

	d.metrics.NotificationResults.WithLabelValues("sent").Inc()
	d.log.InfoContext(ctx, "notification sent",
		"template", req.Template,
		"recipient", req.Recipient.Email,
		"message_id", parsed.ID,
	)
	return Result{Success: true, MessageID: parsed.ID}
}

func (d *ResendDispatcher) simulate(ctx context.Context, req Request) Result {
	msg := render(req)
	d.metrics.NotificationResults.WithLabelValues("simulated").Inc()
	d.log.InfoContext(ctx, "notification simulated (no provider configured)",
		"template", req.Template,
		"recipient", req.Recipient.Email,
		"subject", msg.Subject,
	)
	return Result{Success: true, Simulated: true, MessageID: fmt.Sprintf("simulated-%d", time.Now().UnixNano())}
}

func (d *ResendDispatcher) failed(ctx context.Context, req Request, err error) Result {
	d.metrics.NotificationResults.WithLabelValues("failed").Inc()
	d.log.ErrorContext(ctx, "notification dispatch failed",
		"template", req.Template,
		"recipient", req.Recipient.Email,
		"error", err,
	)
	return Result{Err: err}
}

var _ Dispatcher = (*ResendDispatcher)(nil)
