package association

import (
	"context"
	"errors"
	"fmt"

	"github.com/micahrl/cffunctions/internal/distribution"
)

// Locate returns the behavior selected by pattern: the default behavior for
// distribution.DefaultPattern, otherwise the named behavior with exactly that
// path pattern. Patterns are validated by BuildManifest, so a miss here is an
// InvariantViolation rather than a user error.
func Locate(pattern string, snap *distribution.Snapshot) (*distribution.Behavior, error) {
	if pattern == distribution.DefaultPattern {
		return &snap.DefaultBehavior, nil
	}

	var found *distribution.Behavior
	for i := range snap.Behaviors {
		if snap.Behaviors[i].PathPattern != pattern {
			continue
		}
		if found != nil {
			return nil, &InvariantViolation{
				Message: fmt.Sprintf("distribution %s has more than one behavior with pattern %q", snap.ID, pattern),
			}
		}
		found = &snap.Behaviors[i]
	}
	if found == nil {
		return nil, &InvariantViolation{
			Message: fmt.Sprintf("distribution %s has no behavior with pattern %q after validation", snap.ID, pattern),
		}
	}
	return found, nil
}

func hasBehavior(pattern string, snap *distribution.Snapshot) bool {
	if pattern == distribution.DefaultPattern {
		return true
	}
	for _, b := range snap.Behaviors {
		if b.PathPattern == pattern {
			return true
		}
	}
	return false
}

// AddBindings appends each binding the behavior does not already carry.
func AddBindings(behavior *distribution.Behavior, bindings []distribution.Binding) {
	for _, b := range bindings {
		if !behavior.Has(b) {
			behavior.Bindings = append(behavior.Bindings, b)
		}
	}
}

// RemoveBindings drops every occurrence of each binding. Bindings the
// behavior does not carry are ignored.
func RemoveBindings(behavior *distribution.Behavior, bindings []distribution.Binding) {
	drop := make(map[distribution.Binding]struct{}, len(bindings))
	for _, b := range bindings {
		drop[b] = struct{}{}
	}
	kept := make([]distribution.Binding, 0, len(behavior.Bindings))
	for _, b := range behavior.Bindings {
		if _, ok := drop[b]; !ok {
			kept = append(kept, b)
		}
	}
	behavior.Bindings = kept
}

// HasChanged reports whether any behavior's binding set differs between the
// two snapshots, in either direction.
func HasChanged(mutated, original *distribution.Snapshot) bool {
	if !sameBindings(mutated.DefaultBehavior.Bindings, original.DefaultBehavior.Bindings) {
		return true
	}
	if len(mutated.Behaviors) != len(original.Behaviors) {
		return true
	}

	before := make(map[string][]distribution.Binding, len(original.Behaviors))
	for _, b := range original.Behaviors {
		before[b.PathPattern] = b.Bindings
	}
	for _, b := range mutated.Behaviors {
		old, ok := before[b.PathPattern]
		if !ok || !sameBindings(b.Bindings, old) {
			return true
		}
	}
	return false
}

func sameBindings(a, b []distribution.Binding) bool {
	setA := bindingSet(a)
	setB := bindingSet(b)
	if len(setA) != len(setB) {
		return false
	}
	for k := range setA {
		if _, ok := setB[k]; !ok {
			return false
		}
	}
	return true
}

func bindingSet(bindings []distribution.Binding) map[distribution.Binding]struct{} {
	set := make(map[distribution.Binding]struct{}, len(bindings))
	for _, b := range bindings {
		set[b] = struct{}{}
	}
	return set
}

// ApplyResult is the state of a distribution after Apply.
type ApplyResult struct {
	Snapshot *distribution.Snapshot
	Changed  bool
}

// Apply adds or removes the entry's bindings on a clone of its snapshot and
// writes the clone back only if a binding set changed. The write uses the ETag
// captured when the snapshot was read and is not retried.
func Apply(ctx context.Context, remote Remote, entry ManifestEntry, action Action) (ApplyResult, error) {
	original := entry.Snapshot
	mutated := original.Clone()

	for _, rb := range entry.Bindings {
		behavior, err := Locate(rb.PathPattern, mutated)
		if err != nil {
			return ApplyResult{}, err
		}
		switch action {
		case Associate:
			AddBindings(behavior, []distribution.Binding{rb.Binding()})
		case Disassociate:
			RemoveBindings(behavior, []distribution.Binding{rb.Binding()})
		}
	}

	if !HasChanged(mutated, original) {
		return ApplyResult{Snapshot: original}, nil
	}

	updated, err := remote.UpdateDistribution(ctx, mutated)
	if errors.Is(err, distribution.ErrPreconditionFailed) {
		return ApplyResult{}, &PreconditionFailedError{DistributionID: original.ID, ETag: original.ETag, Err: err}
	}
	if err != nil {
		return ApplyResult{}, fmt.Errorf("writing %s bindings: %w", action, err)
	}
	return ApplyResult{Snapshot: updated, Changed: true}, nil
}
