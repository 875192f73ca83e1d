package providers

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

var (
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrPermanent        = errors.New("permanent request failure")
)

// RetryState is the state the request loop moves to after an attempt.
type RetryState int

const (
	StateAttempting RetryState = iota
	StateBackoff
	StatePermanentFailure
	StateSuccess
)

func (s RetryState) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateBackoff:
		return "backoff"
	case StatePermanentFailure:
		return "permanent_failure"
	case StateSuccess:
		return "success"
	}
	return "unknown"
}

// Outcome classifies a single attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeTimeout
	OutcomeRateLimited // 429 or rejected API key
	OutcomeServerError // 5xx
	OutcomeClientError // any other 4xx
	OutcomeNetworkError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeServerError:
		return "server_error"
	case OutcomeClientError:
		return "client_error"
	case OutcomeNetworkError:
		return "network_error"
	}
	return "unknown"
}

// Decision is what to do after an attempt. Wait is only set for StateBackoff.
type Decision struct {
	State RetryState
	Wait  time.Duration
}

type RetryPolicy struct {
	MaxAttempts      int
	TimeoutPauseMin  time.Duration
	TimeoutPauseMax  time.Duration
	RateLimitStep    time.Duration // multiplied by the attempt number
	ServerErrorDelay time.Duration
	BackoffBase      time.Duration // 2^attempt units
	BackoffCap       time.Duration
	// Jitter returns a value in [0, 1).
	Jitter func() float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      5,
		TimeoutPauseMin:  300 * time.Millisecond,
		TimeoutPauseMax:  800 * time.Millisecond,
		RateLimitStep:    5 * time.Second,
		ServerErrorDelay: 3 * time.Second,
		BackoffBase:      time.Second,
		BackoffCap:       10 * time.Second,
		Jitter:           rand.Float64,
	}
}

// Next computes the next state after the given 1-based attempt produced o.
// It never sleeps.
func (p RetryPolicy) Next(attempt int, o Outcome) Decision {
	switch o {
	case OutcomeOK:
		return Decision{State: StateSuccess}
	case OutcomeClientError:
		return Decision{State: StatePermanentFailure}
	}
	if attempt >= p.MaxAttempts {
		return Decision{State: StatePermanentFailure}
	}

	switch o {
	case OutcomeTimeout:
		span := p.TimeoutPauseMax - p.TimeoutPauseMin
		return Decision{State: StateBackoff, Wait: p.TimeoutPauseMin + time.Duration(p.jitter()*float64(span))}
	case OutcomeRateLimited:
		return Decision{State: StateBackoff, Wait: p.RateLimitStep * time.Duration(attempt)}
	case OutcomeServerError:
		return Decision{State: StateBackoff, Wait: p.ServerErrorDelay}
	default:
		units := math.Pow(2, float64(attempt)) + p.jitter()
		wait := time.Duration(units * float64(p.BackoffBase))
		if wait > p.BackoffCap {
			wait = p.BackoffCap
		}
		return Decision{State: StateBackoff, Wait: wait}
	}
}

func (p RetryPolicy) jitter() float64 {
	if p.Jitter == nil {
		return 0
	}
	return p.Jitter()
}
