package association

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/micahrl/cffunctions/internal/distribution"
	"github.com/micahrl/cffunctions/internal/functions"
	"github.com/micahrl/cffunctions/internal/settle"
)

// BuildManifest fetches every distribution referenced by desired once,
// resolves function names against deployed, checks every behavior pattern,
// and groups the resolved bindings by distribution.
//
// With strict set, any missing distribution or unknown pattern fails the
// whole build. Without it (teardown), missing distributions and unknown
// patterns are logged and their bindings dropped. Unresolvable functions and
// other fetch errors always fail. All problems are returned together and no
// manifest is produced when any occurs.
func BuildManifest(ctx context.Context, remote Remote, desired map[string][]DesiredBinding, deployed []functions.Summary, strict bool, log *zap.Logger) (Manifest, error) {
	if log == nil {
		log = zap.NewNop()
	}

	arns := make(map[string]string, len(deployed))
	for _, fn := range deployed {
		arns[fn.Name] = fn.ARN
	}

	names := make([]string, 0, len(desired))
	for name := range desired {
		names = append(names, name)
	}
	sort.Strings(names)

	var ids []string
	seen := make(map[string]bool)
	for _, name := range names {
		for _, b := range desired[name] {
			if !seen[b.DistributionID] {
				seen[b.DistributionID] = true
				ids = append(ids, b.DistributionID)
			}
		}
	}

	snapshots, err := fetchSnapshots(ctx, remote, ids, strict, log)

	entries := make(map[string]*ManifestEntry, len(snapshots))
	for _, name := range names {
		bindings := desired[name]
		if len(bindings) == 0 {
			continue
		}
		arn, ok := arns[name]
		if !ok {
			err = multierr.Append(err, &FunctionNotDeployedError{FunctionName: name})
			continue
		}

		for _, b := range bindings {
			if !b.EventType.Valid() {
				err = multierr.Append(err, fmt.Errorf("function %s: unknown event type %q", name, b.EventType))
				continue
			}
			snap, ok := snapshots[b.DistributionID]
			if !ok {
				continue
			}
			if !hasBehavior(b.PathPattern, snap) {
				incompatible := &CompatibilityError{FunctionName: name, DistributionID: b.DistributionID, PathPattern: b.PathPattern}
				if strict {
					err = multierr.Append(err, incompatible)
				} else {
					log.Warn("skipping binding", zap.Error(incompatible))
				}
				continue
			}

			entry, ok := entries[b.DistributionID]
			if !ok {
				entry = &ManifestEntry{Snapshot: snap}
				entries[b.DistributionID] = entry
			}
			entry.Bindings = append(entry.Bindings, ResolvedBinding{
				FunctionName: name,
				FunctionARN:  arn,
				PathPattern:  b.PathPattern,
				EventType:    b.EventType,
			})
		}
	}
	if err != nil {
		return nil, err
	}

	manifest := make(Manifest, 0, len(entries))
	for _, id := range ids {
		if entry, ok := entries[id]; ok {
			manifest = append(manifest, *entry)
		}
	}
	return manifest, nil
}

// fetchSnapshots reads each distribution concurrently. It returns the
// snapshots it could read along with every error that should fail the build.
func fetchSnapshots(ctx context.Context, remote Remote, ids []string, strict bool, log *zap.Logger) (map[string]*distribution.Snapshot, error) {
	results := settle.All(ctx, 0, ids, remote.FetchDistribution)

	snapshots := make(map[string]*distribution.Snapshot, len(ids))
	var errs error
	for i, r := range results {
		id := ids[i]
		switch {
		case r.Err == nil:
			snapshots[id] = r.Value
			log.Debug("fetched distribution", zap.String("distribution", id), zap.String("etag", r.Value.ETag))
		case errors.Is(r.Err, distribution.ErrNotFound):
			notFound := &DistributionNotFoundError{DistributionID: id, Err: r.Err}
			if strict {
				errs = multierr.Append(errs, notFound)
				continue
			}
			log.Warn("distribution not found, skipping its bindings", zap.String("distribution", id))
		default:
			errs = multierr.Append(errs, r.Err)
		}
	}
	return snapshots, errs
}
