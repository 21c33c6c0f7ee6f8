// Package model holds the tests, runs and drivers shared by the store, the
// REST server and its clients, and the request bodies they exchange.
package model

import (
	"time"

	"github.com/mslinn/bm-console/pkg/property"
)

// Test is a named benchmark configuration with its property set
type Test struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Release     string                 `json:"release,omitempty"`
	Schema      int                    `json:"schema"`
	Version     int                    `json:"version"`
	CreatedAt   time.Time              `json:"created"`
	ModifiedAt  time.Time              `json:"modified"`
	Properties  []*property.Descriptor `json:"properties,omitempty"`
}

// TestDef is a registered test definition. Drivers register the property
// definitions of the release and schema they run; tests are created from
// them.
type TestDef struct {
	Release     string                 `json:"release"`
	Schema      int                    `json:"schema"`
	Description string                 `json:"description,omitempty"`
	CreatedAt   time.Time              `json:"created"`
	Properties  []*property.Descriptor `json:"properties,omitempty"`
}
