// Package scheduler owns the recurring reminder check.
//
// A Service arms a single robfig/cron entry that calls the reminder Runner.
// The cron callback, the startup run and manual triggers all go through the
// same single-flight path, so at most one batch is ever in flight; a trigger
// that arrives during a batch joins it and receives its result.
package scheduler
