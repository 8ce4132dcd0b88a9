package models

// DrainSummary reports the outcome of one drain cycle.
type DrainSummary struct {
	// Applied is the number of mutations replayed successfully and removed.
	Applied int

	// Retried is the number of mutations that failed with a retryable error
	// this cycle. With the halt-on-failure policy this is at most 1.
	Retried int

	// Dead is the number of mutations marked dead this cycle, either from a
	// terminal remote rejection or an exhausted attempt budget.
	Dead int

	// Remaining is the number of live mutations still pending after the
	// cycle, including any deferred by backoff.
	Remaining int

	// Deferred is true when the drain stopped because the head of the queue
	// had not reached its next attempt time yet.
	Deferred bool

	// Skipped is true when the drain did not run at all because another
	// drain was already in progress.
	Skipped bool
}
