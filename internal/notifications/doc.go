// Package notifications delivers operator-facing push notifications via
// ntfy. The service is a noop unless an ntfy topic is configured, so callers
// never need to guard their notification calls.
package notifications
