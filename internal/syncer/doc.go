// Package syncer owns delivery of queued submissions to the intake backend.
//
// A single worker goroutine drains the queue in arrival order whenever
// connectivity returns, on a periodic ticker while online, or on explicit
// request. Each record moves through a compare-and-set claim, an optional
// attachment upload whose remote reference is persisted immediately, and the
// final submission call that yields the receipt. Transient failures requeue
// the record for the next drain; backend rejections flag the record for user
// review. Either way the drain moves on, so one bad record never blocks the
// rest of the queue.
package syncer
