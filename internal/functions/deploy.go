package functions

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
)

// ErrNotFound is returned when a function does not exist in the requested stage.
var ErrNotFound = errors.New("function not found")

const (
	Development = cftypes.FunctionStageDevelopment
	Live        = cftypes.FunctionStageLive
)

// DefaultRuntime is used when neither the function nor the configuration names one.
const DefaultRuntime = cftypes.FunctionRuntimeCloudfrontJs20

// CFClient abstracts the CloudFront Functions API.
type CFClient interface {
	ListFunctions(ctx context.Context, params *cloudfront.ListFunctionsInput, optFns ...func(*cloudfront.Options)) (*cloudfront.ListFunctionsOutput, error)
	DescribeFunction(ctx context.Context, params *cloudfront.DescribeFunctionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DescribeFunctionOutput, error)
	CreateFunction(ctx context.Context, params *cloudfront.CreateFunctionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateFunctionOutput, error)
	UpdateFunction(ctx context.Context, params *cloudfront.UpdateFunctionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.UpdateFunctionOutput, error)
	PublishFunction(ctx context.Context, params *cloudfront.PublishFunctionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.PublishFunctionOutput, error)
	DeleteFunction(ctx context.Context, params *cloudfront.DeleteFunctionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.DeleteFunctionOutput, error)
}

// Summary identifies a function deployed in one stage.
type Summary struct {
	Name  string
	ARN   string
	Stage cftypes.FunctionStage
}

// Result is the state of a function after a stage or publish operation.
type Result struct {
	Summary
	ETag    string
	Created bool
}

// Definition is everything needed to create or update a function.
type Definition struct {
	Name    string
	Comment string
	Runtime cftypes.FunctionRuntime
	Code    []byte
	KVSARN  string
}

// List returns every function deployed in stage.
func List(ctx context.Context, client CFClient, stage cftypes.FunctionStage) ([]Summary, error) {
	var summaries []Summary
	var marker *string
	for {
		resp, err := client.ListFunctions(ctx, &cloudfront.ListFunctionsInput{
			Stage:  stage,
			Marker: marker,
		})
		if err != nil {
			return nil, fmt.Errorf("listing %s functions: %w", stage, err)
		}
		if resp.FunctionList == nil {
			break
		}
		for _, item := range resp.FunctionList.Items {
			summaries = append(summaries, summaryFrom(&item))
		}
		marker = resp.FunctionList.NextMarker
		if marker == nil {
			break
		}
	}
	return summaries, nil
}

// Stage creates the function, or updates it if it already exists, in the
// DEVELOPMENT stage.
func Stage(ctx context.Context, client CFClient, def Definition) (Result, error) {
	etag, err := describeETag(ctx, client, def.Name, Development)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Result{}, err
	}

	cfg := functionConfig(def)
	if etag != "" {
		resp, err := client.UpdateFunction(ctx, &cloudfront.UpdateFunctionInput{
			Name:           &def.Name,
			IfMatch:        &etag,
			FunctionCode:   def.Code,
			FunctionConfig: cfg,
		})
		if err != nil {
			return Result{}, fmt.Errorf("updating function %s: %w", def.Name, err)
		}
		return Result{Summary: summaryFrom(resp.FunctionSummary), ETag: aws.ToString(resp.ETag)}, nil
	}

	resp, err := client.CreateFunction(ctx, &cloudfront.CreateFunctionInput{
		Name:           &def.Name,
		FunctionCode:   def.Code,
		FunctionConfig: cfg,
	})
	if err != nil {
		return Result{}, fmt.Errorf("creating function %s: %w", def.Name, err)
	}
	return Result{Summary: summaryFrom(resp.FunctionSummary), ETag: aws.ToString(resp.ETag), Created: true}, nil
}

// Publish copies the function's DEVELOPMENT stage to LIVE.
func Publish(ctx context.Context, client CFClient, name string) (Result, error) {
	etag, err := describeETag(ctx, client, name, Development)
	if err != nil {
		return Result{}, err
	}

	resp, err := client.PublishFunction(ctx, &cloudfront.PublishFunctionInput{
		Name:    &name,
		IfMatch: &etag,
	})
	if err != nil {
		return Result{}, fmt.Errorf("publishing function %s: %w", name, err)
	}
	return Result{Summary: summaryFrom(resp.FunctionSummary), ETag: etag}, nil
}

// Delete removes the function from both stages. It returns ErrNotFound when
// the function does not exist.
func Delete(ctx context.Context, client CFClient, name string) error {
	etag, err := describeETag(ctx, client, name, Development)
	if err != nil {
		return err
	}
	_, err = client.DeleteFunction(ctx, &cloudfront.DeleteFunctionInput{
		Name:    &name,
		IfMatch: &etag,
	})
	if err != nil {
		var notFound *cftypes.NoSuchFunctionExists
		if errors.As(err, &notFound) {
			return fmt.Errorf("deleting function %s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("deleting function %s: %w", name, err)
	}
	return nil
}

func describeETag(ctx context.Context, client CFClient, name string, stage cftypes.FunctionStage) (string, error) {
	resp, err := client.DescribeFunction(ctx, &cloudfront.DescribeFunctionInput{
		Name:  &name,
		Stage: stage,
	})
	var notFound *cftypes.NoSuchFunctionExists
	if errors.As(err, &notFound) {
		return "", fmt.Errorf("describing function %s in %s: %w", name, stage, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("describing function %s in %s: %w", name, stage, err)
	}
	if resp.ETag == nil {
		return "", fmt.Errorf("describing function %s in %s: ETag not returned by CloudFront", name, stage)
	}
	return *resp.ETag, nil
}

func functionConfig(def Definition) *cftypes.FunctionConfig {
	runtime := def.Runtime
	if runtime == "" {
		runtime = DefaultRuntime
	}
	comment := def.Comment
	if comment == "" {
		comment = fmt.Sprintf("Managed by cffunctions: %s", def.Name)
	}
	cfg := &cftypes.FunctionConfig{
		Comment: &comment,
		Runtime: runtime,
	}
	if def.KVSARN != "" {
		cfg.KeyValueStoreAssociations = &cftypes.KeyValueStoreAssociations{
			Quantity: aws.Int32(1),
			Items: []cftypes.KeyValueStoreAssociation{
				{KeyValueStoreARN: aws.String(def.KVSARN)},
			},
		}
	}
	return cfg
}

func summaryFrom(fs *cftypes.FunctionSummary) Summary {
	if fs == nil {
		return Summary{}
	}
	s := Summary{Name: aws.ToString(fs.Name)}
	if fs.FunctionMetadata != nil {
		s.ARN = aws.ToString(fs.FunctionMetadata.FunctionARN)
		s.Stage = fs.FunctionMetadata.Stage
	}
	return s
}
