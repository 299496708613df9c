package simulation

// Stats summarises substrate activity.
type Stats struct {
	TotalSensors    int    `json:"total_sensors"`
	ActiveSensors   int    `json:"active_sensors"`
	ExternalSensors int    `json:"external_sensors"`
	DownTargets     int    `json:"down_targets"`
	Ticks           uint64 `json:"ticks"`
	TotalReadings   uint64 `json:"total_readings"`
	IngestedTotal   uint64 `json:"ingested_readings"`
}

// Stats returns current counters. A sensor is active when it is up and has
// at least one reading.
func (s *Substrate) Stats() Stats {
	now := s.clock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		TotalSensors:  len(s.rings),
		Ticks:         s.ticks,
		TotalReadings: s.produced + s.ingested,
		IngestedTotal: s.ingested,
	}
	for id, ring := range s.rings {
		if ring.Len() > 0 && !s.isDownLocked(id, now) {
			st.ActiveSensors++
		}
	}
	st.ExternalSensors = len(s.lastExternal)
	for _, until := range s.downUntil {
		if now.Before(until) {
			st.DownTargets++
		}
	}
	return st
}
