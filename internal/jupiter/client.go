// Package jupiter is a client for a Jupiter-style swap aggregator API.
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"solana-signal-trader/internal/execution"
	"solana-signal-trader/internal/observability"
)

// Defaults.
const (
	DefaultBaseURL           = "https://lite-api.jup.ag/swap/v1"
	DefaultTimeout           = 15 * time.Second
	DefaultRequestsPerSecond = 1.0
	DefaultBreakerFailures   = 5
	DefaultBreakerTimeout    = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	BaseURL           string
	APIKey            string
	HTTPClient        *http.Client
	RequestsPerSecond float64 // Default: 1
	Burst             int     // Default: 1
	BreakerFailures   uint32  // Consecutive failures before the breaker opens. Default: 5
	BreakerTimeout    time.Duration
	// PriorityFee is sent as prioritizationFeeLamports. Empty means "auto".
	PriorityFee string
	Logger      *zap.Logger
}

// Client quotes routes and builds unsigned swap transactions.
type Client struct {
	baseURL     string
	apiKey      string
	http        *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	priorityFee string
	logger      *zap.Logger
}

var _ execution.SwapClient = (*Client)(nil)

// NewClient creates a swap API client.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = DefaultBreakerFailures
	}
	breakerTimeout := opts.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = DefaultBreakerTimeout
	}
	priorityFee := opts.PriorityFee
	if priorityFee == "" {
		priorityFee = "auto"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("jupiter")

	st := gobreaker.Settings{Name: "jupiter"}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= failures }
	st.Timeout = breakerTimeout
	// A missing route is an answer, not an outage.
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, execution.ErrNoRoute) || errors.Is(err, context.Canceled)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("circuit breaker state change",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}

	return &Client{
		baseURL:     baseURL,
		apiKey:      opts.APIKey,
		http:        httpClient,
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		breaker:     gobreaker.NewCircuitBreaker(st),
		priorityFee: priorityFee,
		logger:      logger,
	}
}

// quoteResponse holds the fields read from a /quote response. The full body is
// kept verbatim for /swap.
type quoteResponse struct {
	InputMint   string `json:"inputMint"`
	OutputMint  string `json:"outputMint"`
	InAmount    string `json:"inAmount"`
	OutAmount   string `json:"outAmount"`
	SlippageBps int    `json:"slippageBps"`
	RoutePlan   []struct {
		SwapInfo struct {
			AmmKey string `json:"ammKey"`
			Label  string `json:"label"`
		} `json:"swapInfo"`
	} `json:"routePlan"`
}

// apiError is the error body returned by the API.
type apiError struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

// Quote prices a swap of amount raw units of inputMint into outputMint.
func (c *Client) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*execution.Quote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))

	body, err := c.do(ctx, "quote", http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}

	out, err := parseAmount(resp.OutAmount)
	if err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	if out == 0 || len(resp.RoutePlan) == 0 {
		return nil, execution.ErrNoRoute
	}
	in, err := parseAmount(resp.InAmount)
	if err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}

	return &execution.Quote{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		InAmount:    in,
		OutAmount:   out,
		SlippageBps: resp.SlippageBps,
		Raw:         body,
	}, nil
}

// swapRequest is the /swap request body.
type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports interface{}     `json:"prioritizationFeeLamports"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// BuildSwap returns the unsigned serialized transaction for quote, paid by signer.
func (c *Client) BuildSwap(ctx context.Context, quote *execution.Quote, signer string) ([]byte, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return nil, fmt.Errorf("%w: missing quote", execution.ErrBuildFailed)
	}

	req := swapRequest{
		QuoteResponse:             json.RawMessage(quote.Raw),
		UserPublicKey:             signer,
		WrapAndUnwrapSol:          true,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: c.priorityFeeValue(),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	body, err := c.do(ctx, "swap", http.MethodPost, c.baseURL+"/swap", payload)
	if err != nil {
		return nil, err
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode swap: %w", err)
	}
	if resp.SwapTransaction == "" {
		return nil, execution.ErrBuildFailed
	}

	tx, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("%w: decode transaction: %v", execution.ErrBuildFailed, err)
	}
	return tx, nil
}

func (c *Client) priorityFeeValue() interface{} {
	if n, err := strconv.ParseUint(c.priorityFee, 10, 64); err == nil {
		return n
	}
	return c.priorityFee
}

// do sends one rate-limited request through the circuit breaker.
func (c *Client) do(ctx context.Context, endpoint, method, target string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	defer func() {
		observability.RecordSwapLatency(endpoint, time.Since(start).Seconds())
	}()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("x-api-key", c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return nil, statusError(resp.StatusCode, body)
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("request rejected by circuit breaker", zap.String("endpoint", endpoint))
		}
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	return result.([]byte), nil
}

// statusError maps a non-200 response to an error, ErrNoRoute for routing failures.
func statusError(status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	if status == http.StatusBadRequest || status == http.StatusNotFound {
		code := strings.ToUpper(apiErr.ErrorCode)
		msg := strings.ToLower(apiErr.Error)
		if strings.Contains(code, "ROUTE") || code == "TOKEN_NOT_TRADABLE" || strings.Contains(msg, "route") {
			return fmt.Errorf("%w: %s", execution.ErrNoRoute, apiErr.Error)
		}
	}
	if apiErr.Error != "" {
		return fmt.Errorf("unexpected status %d: %s", status, apiErr.Error)
	}
	return fmt.Errorf("unexpected status %d: %s", status, string(body))
}

func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}
