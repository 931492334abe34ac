package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"
	"golang.org/x/time/rate"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/idcodec"
	"bounty-qa/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 200 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// JSON-RPC method names.
const (
	MethodGetValidator    = "ledger_getValidator"
	MethodGetVotingWindow = "ledger_getVotingWindow"
	MethodApprove         = "ledger_approve"
	MethodRevokeApproval  = "ledger_revokeApproval"
	MethodStake           = "ledger_stake"
	MethodUnstake         = "ledger_unstake"
	MethodSettleAnswer    = "ledger_settleAnswer"
)

// HTTPClient implements Client using HTTP JSON-RPC 2.0.
// Only read methods are retried; writes are sent once so a lost response
// never turns into a second transfer.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for read methods.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *HTTPClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewHTTPClient creates a new Ledger Service HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// call performs a JSON-RPC call. Idempotent calls are retried with
// exponential backoff; RPC errors are never retried.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}, idempotent bool) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordLedgerCall(method, time.Since(start).Seconds(), err)
	}()

	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	attempts := 0
	if idempotent {
		attempts = c.maxRetries
	}
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	if attempts == 0 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// getValidatorResult is the raw RPC response for ledger_getValidator.
type getValidatorResult struct {
	IsValidator  bool   `json:"isValidator"`
	StakedAmount string `json:"stakedAmount"` // decimal base units
}

// GetValidator retrieves the staking state of an account.
func (c *HTTPClient) GetValidator(ctx context.Context, account string) (*domain.Validator, error) {
	var result getValidatorResult
	if err := c.call(ctx, MethodGetValidator, []interface{}{account}, &result, true); err != nil {
		return nil, err
	}

	staked := new(uint256.Int)
	if result.StakedAmount != "" {
		v, err := uint256.FromDecimal(result.StakedAmount)
		if err != nil {
			return nil, fmt.Errorf("parse stakedAmount %q: %w", result.StakedAmount, err)
		}
		staked = v
	}

	return &domain.Validator{
		Account:      account,
		IsValidator:  result.IsValidator,
		StakedAmount: staked,
	}, nil
}

// maxWindowSeconds is the longest window a time.Duration can hold.
const maxWindowSeconds = math.MaxInt64 / int64(time.Second)

// getVotingWindowResult is the raw RPC response for ledger_getVotingWindow.
type getVotingWindowResult struct {
	Seconds int64 `json:"seconds"`
}

// GetVotingWindow retrieves the global voting window.
func (c *HTTPClient) GetVotingWindow(ctx context.Context) (time.Duration, error) {
	var result getVotingWindowResult
	if err := c.call(ctx, MethodGetVotingWindow, nil, &result, true); err != nil {
		return 0, err
	}
	if result.Seconds < 0 {
		return 0, fmt.Errorf("negative voting window %d", result.Seconds)
	}
	if result.Seconds > maxWindowSeconds {
		return 0, fmt.Errorf("voting window %ds exceeds %ds", result.Seconds, maxWindowSeconds)
	}
	return time.Duration(result.Seconds) * time.Second, nil
}

// Approve sets the staking allowance of an account.
func (c *HTTPClient) Approve(ctx context.Context, account string, amount *uint256.Int) error {
	return c.call(ctx, MethodApprove, []interface{}{account, amount.Dec()}, nil, false)
}

// RevokeApproval resets the staking allowance of an account.
// Setting an allowance to zero is idempotent, so it is retried.
func (c *HTTPClient) RevokeApproval(ctx context.Context, account string) error {
	return c.call(ctx, MethodRevokeApproval, []interface{}{account}, nil, true)
}

// Stake moves amount into the account's stake.
func (c *HTTPClient) Stake(ctx context.Context, account string, amount *uint256.Int) error {
	return c.call(ctx, MethodStake, []interface{}{account, amount.Dec()}, nil, false)
}

// Unstake returns amount of stake to the account.
func (c *HTTPClient) Unstake(ctx context.Context, account string, amount *uint256.Int) error {
	return c.call(ctx, MethodUnstake, []interface{}{account, amount.Dec()}, nil, false)
}

// SettleAnswer settles an answer's reward escrow.
func (c *HTTPClient) SettleAnswer(ctx context.Context, answerKey *uint256.Int, favorExpert bool) error {
	return c.call(ctx, MethodSettleAnswer, []interface{}{idcodec.FormatLedgerKey(answerKey), favorExpert}, nil, false)
}

// Verify interface compliance at compile time.
var _ Client = (*HTTPClient)(nil)
