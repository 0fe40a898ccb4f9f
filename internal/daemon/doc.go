// Package daemon wires the queue store, network monitor, and sync engine
// into a single long-running process guarded by a file lock, and exposes the
// operations the IPC surface forwards to it.
package daemon
