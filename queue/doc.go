// Package queue implements the per-conversation message intake queue.
//
// Each conversation key owns one independent state machine: inbound events
// buffer up while a debounce timer runs, rapid-fire messages collapse into a
// single batch, and at most one processing cycle is ever active per key. An
// event arriving mid-cycle does not start a second cycle; it aborts the
// active one so the grown buffer is re-batched as a whole.
//
// Distinct keys run fully concurrently with no shared mutable state between
// them.
package queue
