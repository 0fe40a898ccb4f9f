// Package ipc provides JSON-RPC daemon control over a Unix domain socket,
// with a thin typed client for the CLI.
package ipc
