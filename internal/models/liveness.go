package models

import "time"

// LivenessEvent is what prompted a liveness evaluation.
type LivenessEvent int

const (
	// EventHeartbeat means the endpoint just reported in.
	EventHeartbeat LivenessEvent = iota
	// EventSweep means the periodic staleness sweep is evaluating the endpoint.
	EventSweep
)

// NextStatus is the single liveness transition rule, applied by the store on
// both the heartbeat path and the sweep path.
//
// A heartbeat moves an endpoint online unconditionally; threshold is only
// consulted for sweep events. A sweep moves an endpoint offline only when its
// last heartbeat is older than the threshold; an endpoint that never reported
// stays unknown. The only way back from offline to online is a new heartbeat.
func NextStatus(current EndpointStatus, lastSeen *time.Time, now time.Time, threshold time.Duration, ev LivenessEvent) EndpointStatus {
	if ev == EventHeartbeat {
		return StatusOnline
	}

	if lastSeen == nil {
		return StatusUnknown
	}
	if now.Sub(*lastSeen) > threshold {
		return StatusOffline
	}
	return current
}
