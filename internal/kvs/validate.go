package kvs

import "fmt"

// Service limits for a single store.
const (
	MaxKeyBytes   = 512
	MaxEntryBytes = 1024    // key + value
	MaxTotalBytes = 5242880 // 5 MB
)

// ValidationError describes a single constraint violation.
type ValidationError struct {
	Key     string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Message)
}

// DataStats summarises how much of a store's capacity Data uses.
type DataStats struct {
	NumKeys    int
	TotalBytes int
}

// Percent is TotalBytes as a share of MaxTotalBytes.
func (s DataStats) Percent() float64 {
	return float64(s.TotalBytes) / float64(MaxTotalBytes) * 100
}

func (d *Data) Stats() DataStats {
	total := 0
	for _, e := range d.Entries {
		total += len(e.Key) + len(e.Value)
	}
	return DataStats{NumKeys: len(d.Entries), TotalBytes: total}
}

// Validate checks every entry against the store limits and reports empty
// or repeated keys. Returns nil if valid.
func (d *Data) Validate() []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(d.Entries))

	for i, e := range d.Entries {
		if e.Key == "" {
			errs = append(errs, ValidationError{
				Key:     fmt.Sprintf("(entry %d)", i+1),
				Message: "empty key",
			})
			continue
		}
		if seen[e.Key] {
			errs = append(errs, ValidationError{Key: e.Key, Message: "duplicate key"})
		}
		seen[e.Key] = true

		if n := len(e.Key); n > MaxKeyBytes {
			errs = append(errs, ValidationError{
				Key:     e.Key,
				Message: fmt.Sprintf("key exceeds %d bytes (%d bytes)", MaxKeyBytes, n),
			})
		}
		if n := len(e.Key) + len(e.Value); n > MaxEntryBytes {
			errs = append(errs, ValidationError{
				Key:     e.Key,
				Message: fmt.Sprintf("key+value exceeds %d bytes (%d bytes)", MaxEntryBytes, n),
			})
		}
	}

	if total := d.Stats().TotalBytes; total > MaxTotalBytes {
		errs = append(errs, ValidationError{
			Key:     "(total)",
			Message: fmt.Sprintf("total data exceeds %d bytes (%d bytes)", MaxTotalBytes, total),
		})
	}
	return errs
}
