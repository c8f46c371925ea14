package functions

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
)

// KVSARNResolver abstracts CloudFront KVS ARN resolution.
type KVSARNResolver interface {
	ListKeyValueStores(ctx context.Context, params *cloudfront.ListKeyValueStoresInput, optFns ...func(*cloudfront.Options)) (*cloudfront.ListKeyValueStoresOutput, error)
}

// ResolveKVSARN pages through all key value stores and returns the ARN of the
// one named kvsName.
func ResolveKVSARN(ctx context.Context, client KVSARNResolver, kvsName string) (string, error) {
	var marker *string
	for {
		resp, err := client.ListKeyValueStores(ctx, &cloudfront.ListKeyValueStoresInput{
			Marker: marker,
		})
		if err != nil {
			return "", fmt.Errorf("listing key value stores: %w", err)
		}
		if resp.KeyValueStoreList == nil {
			break
		}
		for _, item := range resp.KeyValueStoreList.Items {
			if aws.ToString(item.Name) == kvsName && item.ARN != nil {
				return *item.ARN, nil
			}
		}
		marker = resp.KeyValueStoreList.NextMarker
		if marker == nil {
			break
		}
	}
	return "", fmt.Errorf("key value store not found: %s", kvsName)
}

// BuildFunctionCode prepends the kvsId variable to the handler source so the
// function can open its associated key value store. Without a store the
// source is returned unchanged.
func BuildFunctionCode(source []byte, kvsARN string) []byte {
	if kvsARN == "" {
		return source
	}
	header := fmt.Sprintf("var kvsId = '%s';\n", kvsARN)
	code := make([]byte, 0, len(header)+len(source))
	code = append(code, header...)
	return append(code, source...)
}
