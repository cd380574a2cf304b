package controller

import "time"

// Policy groups the timing and retry knobs of the command discipline.
// Tests shrink these to keep the fake-transport suites fast.
type Policy struct {
	// CommandTimeout bounds one request/response exchange.
	CommandTimeout time.Duration
	// CommandRetries is the number of extra attempts after the first.
	CommandRetries int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration

	// SessionSettleDelay is honored before the next command whenever the
	// baseband session was changed; readers drop frames sent too soon
	// after a session switch.
	SessionSettleDelay time.Duration

	// StopAttempts stop commands are emitted StopSpacing apart; the
	// reader acknowledges whichever one it hears first.
	StopAttempts int
	StopSpacing  time.Duration
	// StopSettle is honored after the burst before declaring the link
	// quiet again.
	StopSettle time.Duration
	// StopGrace bounds how long the loop gets to exit on its own before
	// it is cancelled outright.
	StopGrace time.Duration

	// LoopReceiveTimeout is the per-cycle receive budget of the
	// inventory loop. Short, so cancellation is noticed promptly.
	LoopReceiveTimeout time.Duration

	// WriteTimeout bounds a tag write exchange. Writes are never
	// retried; a duplicate write after a lost ack would corrupt tags.
	WriteTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		CommandTimeout:     2 * time.Second,
		CommandRetries:     2,
		RetryDelay:         100 * time.Millisecond,
		SessionSettleDelay: 1 * time.Second,
		StopAttempts:       3,
		StopSpacing:        100 * time.Millisecond,
		StopSettle:         500 * time.Millisecond,
		StopGrace:          3 * time.Second,
		LoopReceiveTimeout: 200 * time.Millisecond,
		WriteTimeout:       2 * time.Second,
	}
}
