package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultURL is the case-management endpoint reports are posted to.
const DefaultURL = "https://hackathon.guvi.in/api/updateHoneyPotFinalResult"

// HTTPSink posts reports as JSON.
type HTTPSink struct {
	URL    string
	HTTP   *http.Client
	Logger *slog.Logger
}

// NewHTTPSink creates a sink posting to url with the given client timeout.
func NewHTTPSink(url string, timeout time.Duration, logger *slog.Logger) *HTTPSink {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSink{
		URL:    url,
		HTTP:   &http.Client{Timeout: timeout},
		Logger: logger,
	}
}

// Send implements Sink.
func (s *HTTPSink) Send(ctx context.Context, report Report) error {
	client := s.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	if s.Logger != nil {
		s.Logger.Info("Callback status", "session_id", report.SessionID, "status", res.StatusCode)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("callback endpoint returned status %d", res.StatusCode)
	}
	return nil
}

// LogSink only logs reports. It is used when delivery is disabled.
type LogSink struct {
	Logger *slog.Logger
}

// Send implements Sink.
func (s LogSink) Send(_ context.Context, report Report) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Callback delivery disabled, report not sent",
		"session_id", report.SessionID,
		"turns", report.TotalMessagesExchanged,
		"keywords", report.SuspiciousKeywords,
	)
	return nil
}
