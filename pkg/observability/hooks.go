package observability

import (
	"context"

	"github.com/aretw0/crucible/pkg/domain"
)

// Combine fans each callback out to every hook set, in order.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks

	var transitions []func(context.Context, domain.StateEvent)
	var logs []func(context.Context, domain.LogEvent)
	var finishes []func(context.Context, domain.TestRun)
	for _, h := range sets {
		if h.OnTransition != nil {
			transitions = append(transitions, h.OnTransition)
		}
		if h.OnLog != nil {
			logs = append(logs, h.OnLog)
		}
		if h.OnRunFinish != nil {
			finishes = append(finishes, h.OnRunFinish)
		}
	}

	if len(transitions) > 0 {
		out.OnTransition = func(ctx context.Context, ev domain.StateEvent) {
			for _, fn := range transitions {
				fn(ctx, ev)
			}
		}
	}
	if len(logs) > 0 {
		out.OnLog = func(ctx context.Context, ev domain.LogEvent) {
			for _, fn := range logs {
				fn(ctx, ev)
			}
		}
	}
	if len(finishes) > 0 {
		out.OnRunFinish = func(ctx context.Context, run domain.TestRun) {
			for _, fn := range finishes {
				fn(ctx, run)
			}
		}
	}
	return out
}
