package telephony

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy bounds control-action retries. Transient failures are retried
// with exponential backoff up to MaxAttempts total attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	out := p
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = 250 * time.Millisecond
	}
	return out
}

// SendWithRetry drives SendControlAction under the retry policy. The returned
// result is the final attempt's; Retryable is false once the budget is spent,
// so callers can treat the outcome as permanent either way.
func SendWithRetry(ctx context.Context, a Adapter, externalCallID string, action ControlAction, cfg ProviderConfig, policy RetryPolicy, log *slog.Logger) CallResult {
	policy = policy.withDefaults()
	if log == nil {
		log = slog.Default()
	}

	var res CallResult
	delay := policy.BaseDelay
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		var err error
		res, err = a.SendControlAction(ctx, externalCallID, action, cfg)
		if err != nil {
			res = CallResult{Retryable: false, Detail: err.Error()}
		}
		if res.Success || !res.Retryable {
			return res
		}

		log.Warn("control action attempt failed",
			"provider", a.Type(), "call", externalCallID, "action", action,
			"attempt", attempt, "detail", res.Detail)

		if attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return CallResult{Retryable: false, Detail: ctx.Err().Error()}
		case <-time.After(delay):
		}
		delay *= 2
	}

	// Budget exhausted: surface as permanent.
	res.Retryable = false
	return res
}

// Dispatcher sends control actions in the background so state-machine
// mutations never block on provider acknowledgment. A permanent failure is
// reported through OnPermanentFailure, which the call service uses to
// transition the call to failed.
type Dispatcher struct {
	Registry *Registry
	Resolver Resolver
	Retry    RetryPolicy
	Log      *slog.Logger

	// OnPermanentFailure is invoked outside any queue lock.
	OnPermanentFailure func(tenantID, callID string, res CallResult)
}

// Dispatch resolves the tenant's adapter and fires the action asynchronously.
func (d *Dispatcher) Dispatch(tenantID, callID string, pt ProviderType, externalCallID string, action ControlAction) {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	if d.Registry == nil || d.Resolver == nil {
		log.Error("control dispatcher not configured", "tenant", tenantID, "call", callID)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		adapter, err := d.Registry.Get(pt)
		if err != nil {
			log.Error("control dispatch failed", "tenant", tenantID, "call", callID, "err", err)
			return
		}
		cfg, err := d.Resolver.Provider(ctx, tenantID, pt)
		if err != nil {
			log.Error("control dispatch failed", "tenant", tenantID, "call", callID, "err", err)
			return
		}

		res := SendWithRetry(ctx, adapter, externalCallID, action, cfg, d.Retry, log)
		if res.Success {
			return
		}
		log.Error("control action permanently failed",
			"tenant", tenantID, "call", callID, "action", action, "detail", res.Detail)
		if d.OnPermanentFailure != nil {
			d.OnPermanentFailure(tenantID, callID, res)
		}
	}()
}
