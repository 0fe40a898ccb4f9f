// Package netmon tracks backend reachability for the sync engine.
//
// A periodic HTTP probe against the backend health endpoint drives a boolean
// connectivity state, with one event published per edge. State is treated as
// a hint: the sync engine reports actual request outcomes back into the
// monitor, and those outcomes win. Online edges are debounced so flapping
// links do not trigger a drain storm.
package netmon
