package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	RunID     ID
	MetricKey ID
	EntityID  ID
)

func (id RunID) String() string     { return ID(id).String() }
func (id MetricKey) String() string { return ID(id).String() }
func (id EntityID) String() string  { return ID(id).String() }

// NewRunID creates a fresh pipeline run identifier
func NewRunID() RunID {
	return RunID(NewID())
}

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("run ID %q is not a valid UUID: %w", s, err)
	}
	return RunID(s), nil
}

// SeriesKey identifies one (metric, entity) series inside a run. It is also
// the key used to derive per-series random streams.
type SeriesKey struct {
	Metric MetricKey `json:"metric"`
	Entity EntityID  `json:"entity"`
}

// String renders the key as "metric/entity", or just the metric when the
// series is not tied to an entity.
func (k SeriesKey) String() string {
	if k.Entity == "" {
		return string(k.Metric)
	}
	return string(k.Metric) + "/" + string(k.Entity)
}
