package catalog

import "time"

// decision is the tagged result of classifying one attempt: either retry
// after a wait, or stop with a terminal outcome. Modelling this explicitly
// keeps the classification logic separate from the retry loop's control
// flow.
type decision struct {
	retry bool

	// wait is the backoff before the next attempt (retry only).
	wait time.Duration

	// exhausted is the terminal reason applied if this retry would exceed
	// the attempt budget (retry only).
	exhausted ReasonKind

	// outcome is the terminal result (non-retry only).
	outcome Outcome
}

func retryAfter(wait time.Duration, exhausted ReasonKind) decision {
	return decision{retry: true, wait: wait, exhausted: exhausted}
}

func terminal(outcome Outcome) decision {
	return decision{outcome: outcome}
}
