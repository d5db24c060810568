package implementation

import aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"

// statusOrDefault treats legacy rows without a status as online
func statusOrDefault(s string) aqmmodels.ReadingStatus {
	if s == "" {
		return aqmmodels.StatusOnline
	}
	return aqmmodels.ReadingStatus(s)
}

// deviceOrDefault labels legacy rows without a device id
func deviceOrDefault(id string) string {
	if id == "" {
		return "unknown"
	}
	return id
}

// clampLimit guards store queries against non-positive limits
func clampLimit(limit int) int {
	if limit <= 0 {
		return 1
	}
	return limit
}

// Reading Repository (append-only)
// ├── Insert()  - Single reading append, returns generated id
// ├── Latest()  - Most recent reading or ErrNotFound
// ├── Since()   - Readings at or after a point in time, ascending, capped
// ├── Ping()    - Connectivity check for readiness checks
// └── Close()   - Release the underlying connection

