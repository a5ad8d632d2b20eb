// Package chat connects to the chat relay: a websocket stream of channel
// messages plus an HTTP endpoint for a channel's most recent messages.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solana-signal-trader/internal/domain"
)

// Errors.
var (
	ErrNoChannels   = errors.New("no tracked channels")
	ErrRelayStatus  = errors.New("unexpected relay status")
	ErrInvalidRelay = errors.New("invalid relay url")
)

// Defaults.
const (
	DefaultPingInterval = 15 * time.Second
	DefaultBackoffMin   = 500 * time.Millisecond
	DefaultBackoffMax   = 15 * time.Second
	DefaultBuffer       = 64
	DefaultHTTPTimeout  = 10 * time.Second
)

// Options configures a Relay.
type Options struct {
	WSURL      string // stream endpoint, ws:// or wss://
	BaseURL    string // HTTP endpoint, http:// or https://
	APIKey     string
	Channels   []string
	HTTPClient *http.Client

	PingInterval time.Duration
	BackoffMin   time.Duration
	BackoffMax   time.Duration
	Buffer       int

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = DefaultBackoffMin
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = DefaultBackoffMax
	}
	if o.Buffer <= 0 {
		o.Buffer = DefaultBuffer
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Relay implements the chat transport against the relay service.
type Relay struct {
	opts     Options
	channels map[string]struct{}
	baseURL  string
	logger   *zap.Logger
}

// wireMessage is a message as sent by the relay.
type wireMessage struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
	SentAt  int64  `json:"sent_at"` // unix milliseconds
}

type subscribeRequest struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

type recentResponse struct {
	Messages []wireMessage `json:"messages"`
}

// NewRelay validates opts and creates a Relay.
func NewRelay(opts Options) (*Relay, error) {
	opts = opts.withDefaults()
	if len(opts.Channels) == 0 {
		return nil, ErrNoChannels
	}

	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidRelay, opts.BaseURL)
	}
	ws, err := url.Parse(opts.WSURL)
	if err != nil || (ws.Scheme != "ws" && ws.Scheme != "wss") {
		return nil, fmt.Errorf("%w: ws url %q", ErrInvalidRelay, opts.WSURL)
	}

	channels := make(map[string]struct{}, len(opts.Channels))
	for _, c := range opts.Channels {
		channels[c] = struct{}{}
	}

	return &Relay{
		opts:     opts,
		channels: channels,
		baseURL:  base,
		logger:   opts.Logger.Named("chat"),
	}, nil
}

// Tracked reports whether channelRef is one of the tracked channels.
func (r *Relay) Tracked(channelRef string) bool {
	_, ok := r.channels[channelRef]
	return ok
}

// Subscribe streams messages from tracked channels until ctx is cancelled.
// The connection is re-established with backoff; the channel closes on shutdown.
func (r *Relay) Subscribe(ctx context.Context) (<-chan domain.Message, error) {
	out := make(chan domain.Message, r.opts.Buffer)

	go func() {
		defer close(out)

		backoff := r.opts.BackoffMin
		for {
			if ctx.Err() != nil {
				return
			}

			header := http.Header{}
			if r.opts.APIKey != "" {
				header.Set("Authorization", "Bearer "+r.opts.APIKey)
			}
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.opts.WSURL, header)
			if err != nil {
				r.logger.Warn("relay dial failed", zap.Error(err), zap.Duration("backoff", backoff))
				sleepWithJitter(ctx, backoff)
				backoff = nextBackoff(backoff, r.opts.BackoffMax)
				continue
			}

			backoff = r.opts.BackoffMin
			r.logger.Info("relay connected", zap.Int("channels", len(r.channels)))

			if err := r.runSession(ctx, conn, out); err != nil && ctx.Err() == nil {
				r.logger.Warn("relay session ended", zap.Error(err))
			}

			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			sleepWithJitter(ctx, backoff)
			backoff = nextBackoff(backoff, r.opts.BackoffMax)
		}
	}()

	return out, nil
}

func (r *Relay) runSession(ctx context.Context, conn *websocket.Conn, out chan<- domain.Message) error {
	req := subscribeRequest{Action: "subscribe", Channels: r.opts.Channels}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("relay subscribe write: %w", err)
	}

	var writeMu sync.Mutex
	stop := make(chan struct{})
	var stopOnce sync.Once
	stopAll := func() { stopOnce.Do(func() { close(stop) }) }
	defer stopAll()

	go func() {
		t := time.NewTicker(r.opts.PingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-stop:
				return
			case <-t.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(3*time.Second))
				writeMu.Unlock()
				if err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrCloseSent) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("relay read: %w", err)
		}
		if len(data) == 0 {
			continue
		}

		var wm wireMessage
		if err := json.Unmarshal(data, &wm); err != nil {
			r.logger.Debug("relay message not decoded", zap.Error(err))
			continue
		}
		if !r.Tracked(wm.Channel) {
			continue
		}

		select {
		case out <- wm.toMessage():
		case <-ctx.Done():
			return nil
		}
	}
}

// FetchRecent returns the texts of the count most recent messages of
// channelRef, newest first.
func (r *Relay) FetchRecent(ctx context.Context, channelRef string, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/channels/%s/messages?limit=%s",
		r.baseURL, url.PathEscape(channelRef), strconv.Itoa(count))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.opts.APIKey)
	}

	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch recent: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d: %s", ErrRelayStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rr recentResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	texts := make([]string, 0, len(rr.Messages))
	for _, m := range rr.Messages {
		if len(texts) == count {
			break
		}
		texts = append(texts, m.Text)
	}
	return texts, nil
}

func (m wireMessage) toMessage() domain.Message {
	sentAt := time.Now().UTC()
	if m.SentAt > 0 {
		sentAt = time.UnixMilli(m.SentAt).UTC()
	}
	return domain.Message{Text: m.Text, ChannelRef: m.Channel, SentAt: sentAt}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	j := int64(d) / 7
	if j > 0 {
		d = time.Duration(int64(d) + rand.Int63n(2*j+1) - j)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
