// Package notifier delivers watcher notifications to the configured chat.
//
// Delivery is best-effort and synchronous: Send rate-limits, bounds the call
// with a timeout, logs a failure and returns. Nothing is queued or retried; a
// lost message is lost. Each attempt is published on the event bus and,
// when storage is enabled, appended to the audit log.
//
// For operator visibility the service keeps a small in-memory history of
// recently delivered messages.
package notifier
