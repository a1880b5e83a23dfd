// Package reminder evaluates tasks against the clock and delivers reminders.
//
// Evaluation is a pure function of (tasks, now). Idempotency comes from the
// ledger: an event is delivered, then recorded under its canonical key, and
// an already-recorded event is never delivered again.
package reminder
