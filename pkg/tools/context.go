package tools

// ExecutionContext carries the per-dispatch request information the
// runner folds into the idempotency key and hands to handlers.
type ExecutionContext struct {
	RequestID        string
	Identity         string
	InboundMessageID string
}
