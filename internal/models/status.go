package models

// NextStatus is the transition taken when occupancy is set to current.
// Reaching max marks the zone Full from any state. Below max only a Full zone
// is reopened; Closed and Temporarily Unavailable are kept as set by an admin.
func NextStatus(status SafeZoneStatus, current, max int) SafeZoneStatus {
	if current >= max {
		return StatusFull
	}
	if status == StatusFull {
		return StatusActive
	}
	return status
}
