//go:generate mockgen -source transport.go -destination ./mocks/mock_sender.go -package mocks Sender

package patentsview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"patent-hand/config"
	"patent-hand/metrics"
)

// Sender schickt eine Abfrage an einen Endpunkt und liefert den Rohbody der Antwort.
type Sender interface {
	Send(ctx context.Context, ep Endpoint, req Request) ([]byte, error)
}

// Options sind die Paging-Optionen einer Anfrage; welche Felder gesetzt sind, hängt vom PaginationMode ab.
type Options struct {
	Page    int `json:"page,omitempty"`
	PerPage int `json:"per_page,omitempty"`
	Size    int `json:"size,omitempty"`
	After   any `json:"after,omitempty"`
}

// Request ist eine vollständige Abfrage: Filter, Feldliste, Paging und Sortierung.
type Request struct {
	Filter  Filter
	Fields  []string
	Options Options
	Sort    []map[string]string
}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Client implementiert Sender per HTTP für beide API-Generationen.
type Client struct {
	API        API
	APIKey     string
	UserAgent  string
	RetryAfter time.Duration
	HTTP       *http.Client
	// Timer ersetzt in Tests das Warten auf Retry-After. nil nimmt einen echten Timer.
	Timer  backoff.Timer
	Logger *zap.Logger
}

// NewClient erstellt einen Client aus der Konfiguration.
func NewClient(cfg *config.Config, api API, logger *zap.Logger) *Client {
	return &Client{
		API:        api,
		APIKey:     cfg.PatentsViewAPIKey,
		UserAgent:  cfg.UserAgent,
		RetryAfter: cfg.DefaultRetryAfter,
		HTTP:       &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:     logger,
	}
}

// Send schickt die Anfrage. Auf ein 429 wird genau einmal nach Retry-After erneut gesendet.
func (c *Client) Send(ctx context.Context, ep Endpoint, req Request) ([]byte, error) {
	log := c.Logger.With(zap.String("endpoint", ep.Name))
	policy := &retryAfterPolicy{}
	attempts := 0
	var body []byte

	operation := func() error {
		attempts++
		httpReq, err := c.newRequest(ctx, ep, req)
		if err != nil {
			return backoff.Permanent(err)
		}
		log.Debug("Sende Anfrage an PatentsView", zap.String("method", httpReq.Method), zap.Int("attempt", attempts))

		resp, err := c.HTTP.Do(httpReq)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("anfrage an %s fehlgeschlagen: %w", ep.Name, err))
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("antwort von %s nicht lesbar: %w", ep.Name, err))
		}
		metrics.APIRequests.WithLabelValues(ep.Name, strconv.Itoa(resp.StatusCode)).Inc()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			policy.wait = parseRetryAfter(resp.Header.Get("Retry-After"), c.RetryAfter)
			return &ThrottledError{RetryAfter: policy.wait, Attempts: attempts}
		case resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(&AuthenticationError{APIError: apiError(resp, data)})
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			apiErr := apiError(resp, data)
			return backoff.Permanent(&apiErr)
		}
		body = data
		return nil
	}

	notify := func(err error, wait time.Duration) {
		metrics.APIThrottled.Inc()
		log.Warn("PatentsView drosselt, warte auf Retry-After", zap.Duration("retry_after", wait), zap.Error(err))
	}

	if err := backoff.RetryNotifyWithTimer(operation, backoff.WithContext(policy, ctx), notify, c.Timer); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, ep Endpoint, req Request) (*http.Request, error) {
	q, err := json.Marshal(req.Filter)
	if err != nil {
		return nil, fmt.Errorf("filter nicht serialisierbar: %w", err)
	}
	f, err := json.Marshal(req.Fields)
	if err != nil {
		return nil, err
	}
	o, err := json.Marshal(req.Options)
	if err != nil {
		return nil, err
	}
	s, err := json.Marshal(req.Sort)
	if err != nil {
		return nil, err
	}

	var httpReq *http.Request
	switch c.API.Generation {
	case GenerationLegacy:
		params := url.Values{}
		params.Set("q", newlines.Replace(string(q)))
		params.Set("f", newlines.Replace(string(f)))
		params.Set("o", newlines.Replace(string(o)))
		if len(req.Sort) > 0 {
			params.Set("so", newlines.Replace(string(s)))
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, c.API.URL(ep)+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
	default:
		payload, err := json.Marshal(map[string]json.RawMessage{"q": q, "f": f, "o": o, "s": s})
		if err != nil {
			return nil, err
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, c.API.URL(ep), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-Api-Key", c.APIKey)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.UserAgent)
	return httpReq, nil
}

func apiError(resp *http.Response, body []byte) APIError {
	return APIError{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Reason:     resp.Header.Get("X-Status-Reason"),
	}
}

// parseRetryAfter liest Retry-After in Sekunden, sonst gilt fallback.
func parseRetryAfter(value string, fallback time.Duration) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// retryAfterPolicy erlaubt genau eine Wiederholung und wartet dabei die vom Server genannte Zeit.
type retryAfterPolicy struct {
	wait time.Duration
	used bool
}

func (p *retryAfterPolicy) NextBackOff() time.Duration {
	if p.used {
		return backoff.Stop
	}
	p.used = true
	return p.wait
}

func (p *retryAfterPolicy) Reset() {
	p.used = false
}
