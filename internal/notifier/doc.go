// Package notifier delivers rendered reminder text to the configured chat.
//
// Delivery is synchronous: Send returns only after the transport accepted or
// rejected the message, so callers can decide whether to record the
// notification as sent. Sends share a token-bucket rate limit and a per-send
// timeout.
//
// # History
//
// For debugging and operator visibility, the service keeps a small in-memory
// history of recently delivered messages.
package notifier
