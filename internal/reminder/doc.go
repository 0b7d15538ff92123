// Package reminder is the reminder dispatch core.
//
// A Runner selects the due set from a TaskStore and drives a Dispatcher over
// it sequentially, pacing between dispatches. The Dispatcher formats the
// message, validates the destination, sends through a Channel, marks the task
// and appends a NotificationRecord for every attempt.
//
// Nothing in this package owns a timer; see internal/scheduler.
package reminder
