// Package agent is the conversational orchestration loop: it takes one
// inbound WhatsApp message, folds it into the owner's session, calls the
// model provider, dispatches any requested tools, and loops until a
// final natural-language reply is produced or the round budget runs out.
//
// The loop guards itself at every boundary: duplicate deliveries
// short-circuit, termination keywords end the session without a model
// call, tool outcomes are always structured results, and any residual
// fault is converted to an apology before it can reach the transport.
package agent
