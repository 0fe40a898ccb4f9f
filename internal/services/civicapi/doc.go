// Package civicapi is the HTTP client for the civic intake backend.
//
// The backend exposes two endpoints the sync engine cares about: a multipart
// attachment upload returning an opaque URL, and a JSON submission create
// returning a receipt. Responses are classified into the services error
// taxonomy so the engine can tell transient connectivity failures apart from
// payloads that will never be accepted.
package civicapi
