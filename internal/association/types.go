// Package association reconciles desired function bindings against live
// CloudFront distributions.
//
// A run builds a Manifest (one entry per distinct distribution, with every
// function name resolved to a deployed ARN and every behavior pattern checked
// against the distribution), applies each entry independently, and waits for
// every changed distribution to report "Deployed".
package association

import (
	"context"

	"github.com/micahrl/cffunctions/internal/distribution"
)

// Remote is the part of the CloudFront control plane the engine needs.
type Remote interface {
	FetchDistribution(ctx context.Context, id string) (*distribution.Snapshot, error)
	UpdateDistribution(ctx context.Context, s *distribution.Snapshot) (*distribution.Snapshot, error)
	FetchDistributionStatus(ctx context.Context, id string) (string, error)
}

// Action selects whether bindings are added or removed.
type Action int

const (
	Associate Action = iota
	Disassociate
)

func (a Action) String() string {
	if a == Disassociate {
		return "disassociate"
	}
	return "associate"
}

// DesiredBinding is one configured function-to-behavior association.
type DesiredBinding struct {
	FunctionName   string
	DistributionID string
	EventType      distribution.EventType
	PathPattern    string
}

// ResolvedBinding is a DesiredBinding whose function has been resolved to
// the ARN deployed in the target stage.
type ResolvedBinding struct {
	FunctionName string
	FunctionARN  string
	PathPattern  string
	EventType    distribution.EventType
}

// Binding returns the distribution-level binding.
func (r ResolvedBinding) Binding() distribution.Binding {
	return distribution.Binding{FunctionARN: r.FunctionARN, EventType: r.EventType}
}

// ManifestEntry is the work for one distribution.
type ManifestEntry struct {
	Snapshot *distribution.Snapshot
	Bindings []ResolvedBinding
}

// Manifest holds one entry per distribution, in the order the distributions
// were first referenced.
type Manifest []ManifestEntry
