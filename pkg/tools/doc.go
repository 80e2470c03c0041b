// Package tools holds the capability registry and the runner that
// executes tool calls requested by the model.
//
// A tool is a named handler with a JSON-schema-validated input contract
// and an optional execution policy (timeout, retries, retry delay). The
// registry is static after startup; tools whose external collaborator
// is not configured are simply never registered, so the capability set
// declared to the model always matches what can actually run.
//
// The runner wraps every execution with input validation, a per-attempt
// timeout race, bounded exponential-backoff retries, and an idempotency
// cache keyed by (tool, identity, inbound message id, input) so a
// duplicate dispatch never re-executes a side effect while cached.
package tools
