package model

import "time"

// Driver is a registered benchmark driver. A driver serves the tests of one
// release and schema, and stays active while it keeps refreshing its
// registration.
type Driver struct {
	ID         string    `json:"id"`
	Release    string    `json:"release"`
	Schema     int       `json:"schema"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	Hostname   string    `json:"hostname,omitempty"`
	Registered time.Time `json:"registered"`
	Expires    time.Time `json:"expires"`
}

// Active reports whether the registration is still live at now
func (d *Driver) Active(now time.Time) bool {
	return now.Before(d.Expires)
}

// DriverFilter selects drivers; zero fields match everything
type DriverFilter struct {
	Release    string
	Schema     *int
	ActiveOnly bool
}
