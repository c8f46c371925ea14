// Package kvs keeps a CloudFront KeyValueStore in step with a local entries
// file.
package kvs

// Entry is one key-value pair held in a store.
type Entry struct {
	Key   string
	Value string
}

// Data is the desired content of one store.
type Data struct {
	Entries []Entry
}

// Current is what a store holds right now, and the ETag guarding it.
type Current struct {
	ETag    string
	Entries map[string]string
}

// SyncPlan lists the writes that turn Current into Data.
type SyncPlan struct {
	Puts    []Entry
	Deletes []string
}

// Empty reports whether the plan has nothing to write.
func (p *SyncPlan) Empty() bool {
	return len(p.Puts) == 0 && len(p.Deletes) == 0
}
