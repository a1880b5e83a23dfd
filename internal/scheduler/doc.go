// Package scheduler drives the reminder evaluators on a fixed tick.
//
// Each tick takes one time snapshot, runs every evaluator against it
// independently, and is bounded by a timeout. A tick that is still running
// when the next one is due causes that next tick to be skipped.
package scheduler
