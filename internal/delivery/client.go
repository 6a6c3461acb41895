package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"campaigns/internal/domain"
	"campaigns/internal/observability"
)

// Gateway is a WhatsApp capable provider. HTTP level failures come back
// as *GatewayError; anything else is treated as a transport failure.
type Gateway interface {
	Name() string
	SendMessage(ctx context.Context, p domain.Payload) (providerMessageID string, err error)
}

type GatewayError struct {
	HTTPStatus int
	Code       string
	Message    string
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway error (%d) %s: %s", e.HTTPStatus, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway error (%d): %s", e.HTTPStatus, e.Message)
}

type Client struct {
	Gateway Gateway
	Breaker *gobreaker.CircuitBreaker

	MaxAttempts    int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration

	// Sleep is swappable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

const (
	defaultMaxAttempts    = 3
	defaultBaseDelay      = time.Second
	defaultAttemptTimeout = 10 * time.Second
)

// NewBreaker returns the breaker settings used in front of a gateway.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
		IsSuccessful: func(err error) bool {
			// Request level rejections say nothing about gateway health.
			var ge *GatewayError
			if errors.As(err, &ge) {
				return ge.HTTPStatus < 500 && ge.HTTPStatus != 429
			}
			return err == nil
		},
	})
}

// Send delivers p, retrying transient failures with a linear backoff. It
// never returns an error: the final classified outcome is in the result.
func (c *Client) Send(ctx context.Context, p domain.Payload) domain.AttemptResult {
	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	baseDelay := c.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var res domain.AttemptResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res = c.attempt(ctx, p)
		res.Attempts = attempt
		if res.Success() || !res.Outcome.Transient() || attempt == maxAttempts {
			return res
		}

		slog.Warn("gateway send attempt failed",
			"gateway", c.Gateway.Name(),
			"to", p.To,
			"attempt", attempt,
			"outcome", res.Outcome,
			"err", res.ErrorMessage,
		)
		if err := sleep(ctx, baseDelay*time.Duration(attempt)); err != nil {
			res.Outcome = domain.OutcomeNetworkFailed
			res.ErrorCode = domain.CodeNetwork
			res.ErrorMessage = err.Error()
			return res
		}
	}
	return res
}

func (c *Client) attempt(ctx context.Context, p domain.Payload) domain.AttemptResult {
	timeout := c.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}

	call := func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return c.Gateway.SendMessage(reqCtx, p)
	}

	start := time.Now()
	var out any
	var err error
	if c.Breaker == nil {
		out, err = call()
	} else {
		out, err = c.Breaker.Execute(call)
	}
	observability.GatewayLatency.Observe(time.Since(start).Seconds())

	if err == nil {
		id, _ := out.(string)
		observability.GatewaySend.WithLabelValues("ok", "200").Inc()
		return domain.AttemptResult{Outcome: domain.OutcomeSuccess, MessageID: id}
	}

	res := Classify(err)
	observability.GatewaySend.WithLabelValues(string(res.Outcome), strconv.Itoa(res.HTTPStatus)).Inc()
	return res
}

// Classify maps a gateway error onto a delivery outcome.
func Classify(err error) domain.AttemptResult {
	res := domain.AttemptResult{ErrorMessage: err.Error()}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		res.Outcome = domain.OutcomeServerError
		res.ErrorCode = domain.CodeCircuitOpen
		return res
	}

	var ge *GatewayError
	if errors.As(err, &ge) {
		res.HTTPStatus = ge.HTTPStatus
		res.ErrorCode = domain.CodeGatewayAPI
		switch s := ge.HTTPStatus; {
		case s == 401 || s == 403:
			res.Outcome = domain.OutcomeUnauthorized
		case s == 429:
			res.Outcome = domain.OutcomeRateLimited
		case s >= 400 && s < 500:
			res.Outcome = domain.OutcomeRejected
		case s >= 500 && s < 600:
			res.Outcome = domain.OutcomeServerError
		default:
			res.Outcome = domain.OutcomeUnknownError
		}
		return res
	}

	if isTransport(err) {
		res.Outcome = domain.OutcomeNetworkFailed
		res.ErrorCode = domain.CodeNetwork
		return res
	}

	res.Outcome = domain.OutcomeUnknownError
	res.ErrorCode = domain.CodeUnknown
	return res
}

func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
