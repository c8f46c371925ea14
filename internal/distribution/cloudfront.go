package distribution

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/smithy-go"
	"github.com/mitchellh/copystructure"
)

var (
	// ErrNotFound is returned when the distribution does not exist.
	ErrNotFound = errors.New("distribution not found")

	// ErrPreconditionFailed is returned when an update was made with an
	// ETag that no longer matches the distribution.
	ErrPreconditionFailed = errors.New("distribution was modified since it was read")
)

// Client abstracts the CloudFront distribution API.
type Client interface {
	GetDistribution(ctx context.Context, params *cloudfront.GetDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionOutput, error)
	GetDistributionConfig(ctx context.Context, params *cloudfront.GetDistributionConfigInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionConfigOutput, error)
	UpdateDistribution(ctx context.Context, params *cloudfront.UpdateDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.UpdateDistributionOutput, error)
}

// Fetch reads the distribution's configuration and projects it into a Snapshot.
func Fetch(ctx context.Context, client Client, id string) (*Snapshot, error) {
	resp, err := client.GetDistributionConfig(ctx, &cloudfront.GetDistributionConfigInput{
		Id: &id,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching distribution %s: %w", id, classify(err))
	}
	if resp.DistributionConfig == nil || resp.ETag == nil {
		return nil, fmt.Errorf("fetching distribution %s: DistributionConfig or ETag not returned by CloudFront", id)
	}
	return project(id, *resp.ETag, resp.DistributionConfig), nil
}

// Update writes the snapshot's bindings back to CloudFront using the ETag the
// snapshot was read at. A stale ETag yields ErrPreconditionFailed.
func Update(ctx context.Context, client Client, s *Snapshot) (*Snapshot, error) {
	cfg, err := render(s)
	if err != nil {
		return nil, err
	}

	etag := s.ETag
	resp, err := client.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
		Id:                 &s.ID,
		IfMatch:            &etag,
		DistributionConfig: cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("updating distribution %s: %w", s.ID, classify(err))
	}
	if resp.Distribution == nil || resp.Distribution.DistributionConfig == nil || resp.ETag == nil {
		return nil, fmt.Errorf("updating distribution %s: DistributionConfig or ETag not returned by CloudFront", s.ID)
	}
	return project(s.ID, *resp.ETag, resp.Distribution.DistributionConfig), nil
}

// Status returns the distribution's deployment status, e.g. "InProgress".
func Status(ctx context.Context, client Client, id string) (string, error) {
	resp, err := client.GetDistribution(ctx, &cloudfront.GetDistributionInput{
		Id: &id,
	})
	if err != nil {
		return "", fmt.Errorf("fetching status of distribution %s: %w", id, classify(err))
	}
	if resp.Distribution == nil || resp.Distribution.Status == nil {
		return "", fmt.Errorf("status not returned while fetching distribution %s", id)
	}
	return *resp.Distribution.Status, nil
}

// CloudFront exposes Fetch, Update and Status as methods so a Client can be
// handed to code that only knows about snapshots.
type CloudFront struct {
	Client Client
}

// NewCloudFront wraps client.
func NewCloudFront(client Client) *CloudFront {
	return &CloudFront{Client: client}
}

func (c *CloudFront) FetchDistribution(ctx context.Context, id string) (*Snapshot, error) {
	return Fetch(ctx, c.Client, id)
}

func (c *CloudFront) UpdateDistribution(ctx context.Context, s *Snapshot) (*Snapshot, error) {
	return Update(ctx, c.Client, s)
}

func (c *CloudFront) FetchDistributionStatus(ctx context.Context, id string) (string, error) {
	return Status(ctx, c.Client, id)
}

func classify(err error) error {
	var noDist *cftypes.NoSuchDistribution
	var precondition *cftypes.PreconditionFailed
	switch {
	case errors.As(err, &noDist):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.As(err, &precondition):
		return fmt.Errorf("%w: %w", ErrPreconditionFailed, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchDistribution":
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case "PreconditionFailed":
			return fmt.Errorf("%w: %w", ErrPreconditionFailed, err)
		}
	}
	return err
}

func project(id, etag string, cfg *cftypes.DistributionConfig) *Snapshot {
	s := &Snapshot{
		ID:              id,
		ETag:            etag,
		DefaultBehavior: Behavior{PathPattern: DefaultPattern, Bindings: []Binding{}},
		Behaviors:       []Behavior{},
		config:          cfg,
	}
	if cfg.DefaultCacheBehavior != nil {
		s.DefaultBehavior.Bindings = bindingsFrom(cfg.DefaultCacheBehavior.FunctionAssociations)
	}
	if cfg.CacheBehaviors != nil {
		for _, cb := range cfg.CacheBehaviors.Items {
			s.Behaviors = append(s.Behaviors, Behavior{
				PathPattern: aws.ToString(cb.PathPattern),
				Bindings:    bindingsFrom(cb.FunctionAssociations),
			})
		}
	}
	return s
}

func bindingsFrom(assocs *cftypes.FunctionAssociations) []Binding {
	bindings := []Binding{}
	if assocs == nil {
		return bindings
	}
	for _, a := range assocs.Items {
		bindings = append(bindings, Binding{
			FunctionARN: aws.ToString(a.FunctionARN),
			EventType:   EventType(a.EventType),
		})
	}
	return bindings
}

// render copies the snapshot's source configuration and replaces the function
// associations of every behavior with the snapshot's bindings.
func render(s *Snapshot) (*cftypes.DistributionConfig, error) {
	if s.config == nil {
		return nil, fmt.Errorf("distribution %s: snapshot has no source configuration", s.ID)
	}
	copied, err := copystructure.Copy(s.config)
	if err != nil {
		return nil, fmt.Errorf("distribution %s: copying configuration: %w", s.ID, err)
	}
	cfg := copied.(*cftypes.DistributionConfig)

	if cfg.DefaultCacheBehavior == nil {
		return nil, fmt.Errorf("distribution %s: configuration has no default cache behavior", s.ID)
	}
	cfg.DefaultCacheBehavior.FunctionAssociations = associationsFrom(s.DefaultBehavior.Bindings)

	if len(s.Behaviors) == 0 {
		return cfg, nil
	}
	if cfg.CacheBehaviors == nil {
		return nil, fmt.Errorf("distribution %s: configuration has no cache behaviors", s.ID)
	}
	byPattern := make(map[string]int, len(cfg.CacheBehaviors.Items))
	for i, cb := range cfg.CacheBehaviors.Items {
		byPattern[aws.ToString(cb.PathPattern)] = i
	}
	for _, b := range s.Behaviors {
		i, ok := byPattern[b.PathPattern]
		if !ok {
			return nil, fmt.Errorf("distribution %s: configuration has no cache behavior %q", s.ID, b.PathPattern)
		}
		cfg.CacheBehaviors.Items[i].FunctionAssociations = associationsFrom(b.Bindings)
	}
	return cfg, nil
}

func associationsFrom(bindings []Binding) *cftypes.FunctionAssociations {
	items := make([]cftypes.FunctionAssociation, 0, len(bindings))
	for _, b := range bindings {
		items = append(items, cftypes.FunctionAssociation{
			FunctionARN: aws.String(b.FunctionARN),
			EventType:   cftypes.EventType(b.EventType),
		})
	}
	return &cftypes.FunctionAssociations{
		Quantity: aws.Int32(int32(len(items))),
		Items:    items,
	}
}
