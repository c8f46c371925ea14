package kvs

import (
	"fmt"
	"strings"
	"testing"
)

func hasMessage(errs []ValidationError, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		want    string // substring of an expected message, "" for valid
	}{
		{"valid", []Entry{{Key: "/blog", Value: "/blog/"}, {Key: "/about", Value: "/about/"}}, ""},
		{"empty", nil, ""},
		{"key exactly 512 bytes", []Entry{{Key: strings.Repeat("a", 512), Value: strings.Repeat("b", 512)}}, ""},
		{"entry exactly 1024 bytes", []Entry{{Key: strings.Repeat("a", 100), Value: strings.Repeat("b", 924)}}, ""},
		{"key too long", []Entry{{Key: "/" + strings.Repeat("a", 512), Value: "/dest"}}, "key exceeds"},
		{"entry too long", []Entry{{Key: "/ok", Value: strings.Repeat("x", 1022)}}, "key+value exceeds"},
		{"empty key", []Entry{{Key: "", Value: "x"}}, "empty key"},
		{"duplicate key", []Entry{{Key: "/a", Value: "1"}, {Key: "/a", Value: "2"}}, "duplicate key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := (&Data{Entries: tt.entries}).Validate()
			if tt.want == "" {
				if len(errs) > 0 {
					t.Errorf("expected no errors, got %v", errs)
				}
				return
			}
			if !hasMessage(errs, tt.want) {
				t.Errorf("expected %q error, got %v", tt.want, errs)
			}
		})
	}
}

func TestValidate_TotalTooLarge(t *testing.T) {
	// ~1000 bytes each, more than 5 MB together
	val := strings.Repeat("x", 990)
	var entries []Entry
	for i := 0; i < 5300; i++ {
		entries = append(entries, Entry{Key: fmt.Sprintf("/k%05d", i), Value: val})
	}
	d := &Data{Entries: entries}

	errs := d.Validate()
	if !hasMessage(errs, "total data exceeds") {
		t.Errorf("expected total size error, got %d errors", len(errs))
	}
	if len(errs) != 1 {
		t.Errorf("expected only the total error, got %d", len(errs))
	}
	if p := d.Stats().Percent(); p <= 100 {
		t.Errorf("expected more than 100%% usage, got %.1f", p)
	}
}
