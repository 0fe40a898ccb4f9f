// Package api defines the transport-friendly record and status projections
// shared by the IPC surface and the CLI renderers.
package api
