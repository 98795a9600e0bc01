// Package webhook forwards record events to configured HTTP endpoints. Each
// delivery is signed with HMAC-SHA256 so receivers can authenticate it.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/platform/events"
)

const (
	SignatureHeader = "X-HIS-Signature"
	EventHeader     = "X-HIS-Event"
	DeliveryHeader  = "X-HIS-Delivery"
)

var (
	ErrQueueFull = errors.New("webhook queue is full")
	ErrClosed    = errors.New("webhook publisher is closed")
)

// Endpoint is one delivery target. Events holds routing-key patterns such as
// "invoices.*" or "*.deleted"; empty means every event.
type Endpoint struct {
	URL    string
	Secret string
	Events []string
}

func (ep Endpoint) wants(routingKey string) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, p := range ep.Events {
		if eventMatches(p, routingKey) {
			return true
		}
	}
	return false
}

type Option func(*Publisher)

func WithMaxRetries(n int) Option {
	return func(p *Publisher) { p.client.SetRetryCount(n) }
}

// WithRetryWait sets the initial and maximum backoff between attempts.
func WithRetryWait(initial, limit time.Duration) Option {
	return func(p *Publisher) { p.client.SetRetryWaitTime(initial).SetRetryMaxWaitTime(limit) }
}

func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) { p.client.SetTimeout(d) }
}

func WithQueueSize(n int) Option {
	return func(p *Publisher) { p.queueSize = n }
}

type delivery struct {
	endpoint Endpoint
	evt      events.Event
	body     []byte
}

// Publisher implements events.Publisher. Publish only enqueues; a single
// worker delivers in order and Close waits for the queue to drain.
type Publisher struct {
	client    *resty.Client
	endpoints []Endpoint
	logger    zerolog.Logger
	queueSize int

	mu     sync.RWMutex
	closed bool
	queue  chan delivery
	done   chan struct{}
}

func NewPublisher(endpoints []Endpoint, logger zerolog.Logger, opts ...Option) (*Publisher, error) {
	for _, ep := range endpoints {
		if err := validateURL(ep.URL); err != nil {
			return nil, err
		}
	}

	client := resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	p := &Publisher{
		client:    client,
		endpoints: endpoints,
		logger:    logger.With().Str("component", "webhook").Logger(),
		queueSize: 256,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = make(chan delivery, p.queueSize)
	p.done = make(chan struct{})
	go p.run()
	return p, nil
}

func (p *Publisher) Publish(_ context.Context, evt events.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	key := evt.RoutingKey()
	for _, ep := range p.endpoints {
		if !ep.wants(key) {
			continue
		}
		select {
		case p.queue <- delivery{endpoint: ep, evt: evt, body: body}:
		default:
			return ErrQueueFull
		}
	}
	return nil
}

// Close stops accepting events and waits for queued deliveries.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
	return nil
}

func (p *Publisher) run() {
	defer close(p.done)
	for d := range p.queue {
		if err := p.deliver(context.Background(), d); err != nil {
			p.logger.Warn().Err(err).
				Str("url", d.endpoint.URL).
				Str("routing_key", d.evt.RoutingKey()).
				Str("event_id", d.evt.ID).
				Msg("webhook delivery failed")
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, d delivery) error {
	req := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(EventHeader, d.evt.RoutingKey()).
		SetHeader(DeliveryHeader, d.evt.ID).
		SetBody(d.body)
	if d.endpoint.Secret != "" {
		req.SetHeader(SignatureHeader, "sha256="+SignPayload(d.body, d.endpoint.Secret))
	}

	resp, err := req.Post(d.endpoint.URL)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("endpoint answered %d", resp.StatusCode())
	}
	p.logger.Debug().Str("url", d.endpoint.URL).Str("routing_key", d.evt.RoutingKey()).
		Int("attempts", resp.Request.Attempt).Msg("webhook delivered")
	return nil
}

// SignPayload returns the hex HMAC-SHA256 of payload.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header value, with or without the
// "sha256=" prefix.
func VerifySignature(payload []byte, secret, signature string) bool {
	want := SignPayload(payload, secret)
	return hmac.Equal([]byte(want), []byte(strings.TrimPrefix(signature, "sha256=")))
}

// eventMatches supports "*" as a whole segment: "*", "invoices.*", "*.deleted".
func eventMatches(pattern, routingKey string) bool {
	if pattern == "*" || pattern == routingKey {
		return true
	}
	pk, po, ok1 := strings.Cut(pattern, ".")
	rk, ro, ok2 := strings.Cut(routingKey, ".")
	if !ok1 || !ok2 {
		return false
	}
	return (pk == "*" || pk == rk) && (po == "*" || po == ro)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("webhook url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook url %q: host is required", raw)
	}
	return nil
}
