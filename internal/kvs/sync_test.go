package kvs

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfrontkeyvaluestore"
	cfkvstypes "github.com/aws/aws-sdk-go-v2/service/cloudfrontkeyvaluestore/types"
	"go.uber.org/zap/zaptest"
)

// fakeStore is an in-memory key value store that pages ListKeys two at a
// time and enforces IfMatch on UpdateKeys.
type fakeStore struct {
	etag    int
	entries map[string]string
	calls   []*cloudfrontkeyvaluestore.UpdateKeysInput
	failOn  int // 1-based UpdateKeys call to fail, 0 for none
}

func newFakeStore(entries map[string]string) *fakeStore {
	if entries == nil {
		entries = map[string]string{}
	}
	return &fakeStore{etag: 1, entries: entries}
}

func (f *fakeStore) tag() string { return fmt.Sprintf("E%d", f.etag) }

func (f *fakeStore) DescribeKeyValueStore(ctx context.Context, params *cloudfrontkeyvaluestore.DescribeKeyValueStoreInput, optFns ...func(*cloudfrontkeyvaluestore.Options)) (*cloudfrontkeyvaluestore.DescribeKeyValueStoreOutput, error) {
	return &cloudfrontkeyvaluestore.DescribeKeyValueStoreOutput{ETag: aws.String(f.tag())}, nil
}

func (f *fakeStore) ListKeys(ctx context.Context, params *cloudfrontkeyvaluestore.ListKeysInput, optFns ...func(*cloudfrontkeyvaluestore.Options)) (*cloudfrontkeyvaluestore.ListKeysOutput, error) {
	keys := make([]string, 0, len(f.entries))
	for k := range f.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if params.NextToken != nil {
		fmt.Sscanf(*params.NextToken, "%d", &start)
	}
	end := min(start+2, len(keys))
	out := &cloudfrontkeyvaluestore.ListKeysOutput{}
	for _, k := range keys[start:end] {
		out.Items = append(out.Items, cfkvstypes.ListKeysResponseListItem{Key: aws.String(k), Value: aws.String(f.entries[k])})
	}
	if end < len(keys) {
		out.NextToken = aws.String(fmt.Sprint(end))
	}
	return out, nil
}

func (f *fakeStore) UpdateKeys(ctx context.Context, params *cloudfrontkeyvaluestore.UpdateKeysInput, optFns ...func(*cloudfrontkeyvaluestore.Options)) (*cloudfrontkeyvaluestore.UpdateKeysOutput, error) {
	f.calls = append(f.calls, params)
	if len(f.calls) == f.failOn {
		return nil, errors.New("throttled")
	}
	if aws.ToString(params.IfMatch) != f.tag() {
		return nil, errors.New("precondition failed")
	}
	for _, p := range params.Puts {
		f.entries[*p.Key] = *p.Value
	}
	for _, d := range params.Deletes {
		delete(f.entries, *d.Key)
	}
	f.etag++
	return &cloudfrontkeyvaluestore.UpdateKeysOutput{ETag: aws.String(f.tag())}, nil
}

func TestComputeSyncPlan(t *testing.T) {
	desired := &Data{
		Entries: []Entry{
			{Key: "/keep", Value: "/keep/"},       // unchanged
			{Key: "/update", Value: "/new-dest/"}, // value changed
			{Key: "/new", Value: "/new/"},         // new key
		},
	}
	current := map[string]string{
		"/keep":   "/keep/",
		"/update": "/old-dest/",
		"/stale":  "/stale/",
		"/old":    "/old/",
	}

	plan := ComputeSyncPlan(desired, current)

	wantPuts := []Entry{{Key: "/update", Value: "/new-dest/"}, {Key: "/new", Value: "/new/"}}
	if !reflect.DeepEqual(plan.Puts, wantPuts) {
		t.Errorf("puts = %v, want %v", plan.Puts, wantPuts)
	}
	if !reflect.DeepEqual(plan.Deletes, []string{"/old", "/stale"}) {
		t.Errorf("deletes = %v, want [/old /stale]", plan.Deletes)
	}
}

func TestComputeSyncPlan_NoChanges(t *testing.T) {
	plan := ComputeSyncPlan(&Data{Entries: []Entry{{Key: "/blog", Value: "/blog/"}}}, map[string]string{"/blog": "/blog/"})
	if !plan.Empty() {
		t.Errorf("expected empty plan, got %+v", plan)
	}
}

func TestBatches(t *testing.T) {
	plan := &SyncPlan{}
	for i := 0; i < 7; i++ {
		plan.Puts = append(plan.Puts, Entry{Key: fmt.Sprint(i), Value: "v"})
	}
	plan.Deletes = []string{"a", "b", "c"}

	got := batches(plan, 4)
	if len(got) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(got))
	}
	sizes := [][2]int{}
	for _, b := range got {
		sizes = append(sizes, [2]int{len(b.puts), len(b.deletes)})
	}
	want := [][2]int{{4, 0}, {3, 1}, {0, 2}}
	if !reflect.DeepEqual(sizes, want) {
		t.Errorf("batch sizes = %v, want %v", sizes, want)
	}
	if len(batches(&SyncPlan{}, 4)) != 0 {
		t.Error("expected no batches for an empty plan")
	}
}

func TestFetch_Paginates(t *testing.T) {
	store := newFakeStore(map[string]string{"/a": "1", "/b": "2", "/c": "3", "/d": "4", "/e": "5"})

	cur, err := Fetch(context.Background(), store, "arn:kvs")
	if err != nil {
		t.Fatal(err)
	}
	if cur.ETag != "E1" {
		t.Errorf("etag = %s, want E1", cur.ETag)
	}
	if !reflect.DeepEqual(cur.Entries, store.entries) {
		t.Errorf("entries = %v, want %v", cur.Entries, store.entries)
	}
}

func TestSync_ChainsETags(t *testing.T) {
	store := newFakeStore(nil)
	plan := &SyncPlan{}
	for i := 0; i < 120; i++ {
		plan.Puts = append(plan.Puts, Entry{Key: fmt.Sprintf("/k%03d", i), Value: "v"})
	}

	etag, err := Sync(context.Background(), store, "arn:kvs", "E1", plan)
	if err != nil {
		t.Fatal(err)
	}
	if len(store.calls) != 3 {
		t.Errorf("expected 3 UpdateKeys calls, got %d", len(store.calls))
	}
	if etag != "E4" {
		t.Errorf("final etag = %s, want E4", etag)
	}
	if len(store.entries) != 120 {
		t.Errorf("expected 120 keys, got %d", len(store.entries))
	}
}

func TestSync_ReportsFailedBatch(t *testing.T) {
	store := newFakeStore(nil)
	store.failOn = 2
	plan := &SyncPlan{}
	for i := 0; i < 60; i++ {
		plan.Puts = append(plan.Puts, Entry{Key: fmt.Sprintf("/k%03d", i), Value: "v"})
	}

	etag, err := Sync(context.Background(), store, "arn:kvs", "E1", plan)
	if err == nil || !strings.Contains(err.Error(), "batch 2/2") {
		t.Fatalf("expected batch 2/2 failure, got %v", err)
	}
	if etag != "E2" {
		t.Errorf("etag after first batch = %s, want E2", etag)
	}
}

func TestSyncStore(t *testing.T) {
	store := newFakeStore(map[string]string{"/old": "/gone/", "/keep": "/keep/"})
	desired := &Data{Entries: []Entry{{Key: "/keep", Value: "/keep/"}, {Key: "/new", Value: "/new/"}}}

	plan, err := SyncStore(context.Background(), store, "arn:kvs", desired, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Puts) != 1 || len(plan.Deletes) != 1 {
		t.Errorf("unexpected plan %+v", plan)
	}
	want := map[string]string{"/keep": "/keep/", "/new": "/new/"}
	if !reflect.DeepEqual(store.entries, want) {
		t.Errorf("store = %v, want %v", store.entries, want)
	}

	// A second run has nothing to do.
	plan, err = SyncStore(context.Background(), store, "arn:kvs", desired, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if !plan.Empty() || len(store.calls) != 1 {
		t.Errorf("expected no writes on second sync, plan %+v, calls %d", plan, len(store.calls))
	}
}

func TestSyncStore_InvalidWritesNothing(t *testing.T) {
	store := newFakeStore(nil)
	desired := &Data{Entries: []Entry{{Key: "/a", Value: "1"}, {Key: "/a", Value: "2"}, {Key: "", Value: "3"}}}

	_, err := SyncStore(context.Background(), store, "arn:kvs", desired, nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "duplicate key") || !strings.Contains(err.Error(), "empty key") {
		t.Errorf("expected both problems reported, got %v", err)
	}
	if len(store.calls) != 0 {
		t.Errorf("expected no UpdateKeys calls, got %d", len(store.calls))
	}
}
