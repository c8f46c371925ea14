package kvs

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfrontkeyvaluestore"
	cfkvstypes "github.com/aws/aws-sdk-go-v2/service/cloudfrontkeyvaluestore/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Client is the part of the CloudFront KeyValueStore API used here.
type Client interface {
	DescribeKeyValueStore(ctx context.Context, params *cloudfrontkeyvaluestore.DescribeKeyValueStoreInput, optFns ...func(*cloudfrontkeyvaluestore.Options)) (*cloudfrontkeyvaluestore.DescribeKeyValueStoreOutput, error)
	ListKeys(ctx context.Context, params *cloudfrontkeyvaluestore.ListKeysInput, optFns ...func(*cloudfrontkeyvaluestore.Options)) (*cloudfrontkeyvaluestore.ListKeysOutput, error)
	UpdateKeys(ctx context.Context, params *cloudfrontkeyvaluestore.UpdateKeysInput, optFns ...func(*cloudfrontkeyvaluestore.Options)) (*cloudfrontkeyvaluestore.UpdateKeysOutput, error)
}

// maxKeysPerBatch is the UpdateKeys limit on puts plus deletes per call.
const maxKeysPerBatch = 50

// ComputeSyncPlan compares desired against current. Puts keep the order of
// desired; deletes are sorted.
func ComputeSyncPlan(desired *Data, current map[string]string) *SyncPlan {
	plan := &SyncPlan{}
	want := make(map[string]bool, len(desired.Entries))

	for _, e := range desired.Entries {
		want[e.Key] = true
		if v, ok := current[e.Key]; !ok || v != e.Value {
			plan.Puts = append(plan.Puts, e)
		}
	}
	for key := range current {
		if !want[key] {
			plan.Deletes = append(plan.Deletes, key)
		}
	}
	sort.Strings(plan.Deletes)
	return plan
}

// Fetch reads the store's ETag and every key in it.
func Fetch(ctx context.Context, client Client, arn string) (*Current, error) {
	desc, err := client.DescribeKeyValueStore(ctx, &cloudfrontkeyvaluestore.DescribeKeyValueStoreInput{
		KvsARN: aws.String(arn),
	})
	if err != nil {
		return nil, fmt.Errorf("describing key value store %s: %w", arn, err)
	}

	cur := &Current{ETag: aws.ToString(desc.ETag), Entries: make(map[string]string)}
	var next *string
	for {
		resp, err := client.ListKeys(ctx, &cloudfrontkeyvaluestore.ListKeysInput{
			KvsARN:    aws.String(arn),
			NextToken: next,
		})
		if err != nil {
			return nil, fmt.Errorf("listing keys of %s: %w", arn, err)
		}
		for _, item := range resp.Items {
			cur.Entries[aws.ToString(item.Key)] = aws.ToString(item.Value)
		}
		if next = resp.NextToken; next == nil {
			break
		}
	}
	return cur, nil
}

type batch struct {
	puts    []cfkvstypes.PutKeyRequestListItem
	deletes []cfkvstypes.DeleteKeyRequestListItem
}

// batches splits a plan into UpdateKeys calls of at most size keys, puts
// first.
func batches(plan *SyncPlan, size int) []batch {
	var out []batch
	cur := batch{}
	flush := func() {
		if len(cur.puts)+len(cur.deletes) == size {
			out = append(out, cur)
			cur = batch{}
		}
	}
	for _, e := range plan.Puts {
		cur.puts = append(cur.puts, cfkvstypes.PutKeyRequestListItem{Key: aws.String(e.Key), Value: aws.String(e.Value)})
		flush()
	}
	for _, k := range plan.Deletes {
		cur.deletes = append(cur.deletes, cfkvstypes.DeleteKeyRequestListItem{Key: aws.String(k)})
		flush()
	}
	if len(cur.puts)+len(cur.deletes) > 0 {
		out = append(out, cur)
	}
	return out
}

// Sync applies plan in batches, carrying each response's ETag into the next
// call. It returns the store's final ETag.
func Sync(ctx context.Context, client Client, arn, etag string, plan *SyncPlan) (string, error) {
	all := batches(plan, maxKeysPerBatch)
	for i, b := range all {
		resp, err := client.UpdateKeys(ctx, &cloudfrontkeyvaluestore.UpdateKeysInput{
			KvsARN:  aws.String(arn),
			IfMatch: aws.String(etag),
			Puts:    b.puts,
			Deletes: b.deletes,
		})
		if err != nil {
			return etag, fmt.Errorf("updating keys of %s (batch %d/%d, %d puts, %d deletes): %w",
				arn, i+1, len(all), len(b.puts), len(b.deletes), err)
		}
		if resp.ETag != nil {
			etag = *resp.ETag
		}
	}
	return etag, nil
}

// SyncStore validates desired, then brings the store at arn in line with it.
// Validation problems are returned together and nothing is written.
func SyncStore(ctx context.Context, client Client, arn string, desired *Data, log *zap.Logger) (*SyncPlan, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("store", arn))

	var invalid error
	for _, e := range desired.Validate() {
		invalid = multierr.Append(invalid, e)
	}
	if invalid != nil {
		return nil, fmt.Errorf("validating entries: %w", invalid)
	}

	stats := desired.Stats()
	log.Info("key value store capacity",
		zap.Int("keys", stats.NumKeys),
		zap.Int("bytes", stats.TotalBytes),
		zap.Float64("percent", stats.Percent()))

	cur, err := Fetch(ctx, client, arn)
	if err != nil {
		return nil, err
	}
	plan := ComputeSyncPlan(desired, cur.Entries)
	if plan.Empty() {
		log.Info("key value store up to date")
		return plan, nil
	}

	etag, err := Sync(ctx, client, arn, cur.ETag, plan)
	if err != nil {
		return nil, err
	}
	log.Info("synced key value store",
		zap.Int("puts", len(plan.Puts)),
		zap.Int("deletes", len(plan.Deletes)),
		zap.String("etag", etag))
	return plan, nil
}
