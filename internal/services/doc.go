// Package services defines the shared error taxonomy for remote operations.
//
// Delivery code wraps failures with sentinel markers (transient, validation,
// configuration) and the sync engine maps them onto queue statuses: transient
// failures keep a record queued for the next drain, while validation and
// configuration failures flag it for user attention.
package services
