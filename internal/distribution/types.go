package distribution

import (
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
)

// DefaultPattern is the behavior pattern that selects a distribution's
// default cache behavior instead of a named one.
const DefaultPattern = "default"

// EventType is the viewer event a function is triggered by.
type EventType string

const (
	ViewerRequest  EventType = "viewer-request"
	ViewerResponse EventType = "viewer-response"
)

// Valid reports whether e is an event type CloudFront Functions can bind to.
func (e EventType) Valid() bool {
	return e == ViewerRequest || e == ViewerResponse
}

// Binding associates a deployed function with a behavior for one event type.
// A behavior never holds the same Binding twice.
type Binding struct {
	FunctionARN string
	EventType   EventType
}

// Behavior is a cache behavior and the function bindings it carries.
type Behavior struct {
	PathPattern string
	Bindings    []Binding
}

// Has reports whether the behavior already carries b.
func (b *Behavior) Has(binding Binding) bool {
	for _, existing := range b.Bindings {
		if existing == binding {
			return true
		}
	}
	return false
}

// Snapshot is a distribution's behaviors as read at a specific ETag.
// Binding lists are never nil. A Snapshot belongs to a single reconcile task;
// Clone it before mutating so the original remains available for diffing.
type Snapshot struct {
	ID              string
	ETag            string
	DefaultBehavior Behavior
	Behaviors       []Behavior

	// config is the full remote configuration the snapshot was projected
	// from. It is never mutated; Update renders bindings into a copy.
	config *cftypes.DistributionConfig
}

// Clone returns a deep copy of the snapshot's behaviors and bindings.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		ID:              s.ID,
		ETag:            s.ETag,
		DefaultBehavior: cloneBehavior(s.DefaultBehavior),
		Behaviors:       make([]Behavior, len(s.Behaviors)),
		config:          s.config,
	}
	for i, b := range s.Behaviors {
		c.Behaviors[i] = cloneBehavior(b)
	}
	return c
}

func cloneBehavior(b Behavior) Behavior {
	bindings := make([]Binding, len(b.Bindings))
	copy(bindings, b.Bindings)
	return Behavior{PathPattern: b.PathPattern, Bindings: bindings}
}
