package main

import "time"

// pruneCutoff maps a retention window in days onto an absolute cutoff. Zero
// days prunes every delivered record.
func pruneCutoff(olderThanDays int) time.Time {
	if olderThanDays <= 0 {
		return time.Now()
	}
	return time.Now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
}
