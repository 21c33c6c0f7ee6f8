package model

import (
	"time"

	"github.com/mslinn/bm-console/pkg/apierr"
	"github.com/mslinn/bm-console/pkg/property"
)

// BasePath prefixes every route
const BasePath = "/api/v1"

// TestRequest creates a test, or copies CopyOf at Version when set. Without
// Properties the test takes the definition registered for Release and
// Schema.
type TestRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Release     string                 `json:"release,omitempty"`
	Schema      int                    `json:"schema,omitempty"`
	CopyOf      string                 `json:"copyOf,omitempty"`
	Version     int                    `json:"version,omitempty"`
	Properties  []*property.Descriptor `json:"properties,omitempty"`
}

// TestDefRequest registers a test definition
type TestDefRequest struct {
	Release     string                 `json:"release"`
	Schema      int                    `json:"schema"`
	Description string                 `json:"description,omitempty"`
	Properties  []*property.Descriptor `json:"properties"`
}

// DriverRequest registers a driver, active for TTL seconds
type DriverRequest struct {
	Release   string `json:"release"`
	Schema    int    `json:"schema"`
	IPAddress string `json:"ipAddress,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
	TTL       int    `json:"ttl"`
}

// RefreshRequest extends a driver registration by TTL seconds
type RefreshRequest struct {
	TTL int `json:"ttl"`
}

// RunRequest creates a run, or copies CopyOf at Version when set
type RunRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CopyOf      string `json:"copyOf,omitempty"`
	Version     int    `json:"version,omitempty"`
}

// UpdateRequest renames or redescribes a test or run at Version
type UpdateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     int    `json:"version"`
}

// PropertyRequest sets a property at Version; a null value resets it
type PropertyRequest struct {
	Version int             `json:"version"`
	Value   *property.Value `json:"value"`
}

// ScheduleRequest schedules a run at Version; no time means now
type ScheduleRequest struct {
	Version   int        `json:"version"`
	Scheduled *time.Time `json:"scheduled,omitempty"`
}

// ProgressRequest is a progress report from the driver
type ProgressRequest struct {
	Progress       float64 `json:"progress"`
	ResultsSuccess int64   `json:"resultsSuccess"`
	ResultsFail    int64   `json:"resultsFail"`
}

// LogRequest appends a message to a run's log
type LogRequest struct {
	Level   LogLevel `json:"level"`
	Message string   `json:"msg"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Reason  apierr.Reason `json:"reason"`
	Message string        `json:"message"`
}

// StatusResponse reports server health
type StatusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Tests   int    `json:"tests"`
}
