// Package scheduler fires named periodic tasks on cron or interval schedules.
//
// Each task has its own trigger loop driven by an injectable clock. A firing
// that finds the previous run of the same task still in flight is skipped and
// counted, never queued; different tasks run independently.
package scheduler
