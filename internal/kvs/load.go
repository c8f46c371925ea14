package kvs

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// LoadEntries reads a store's entries file.
//
// A .json file holds one object. String values are stored as is; object
// values are flattened into "Name: value" lines sorted by name, which is how
// per-path header sets are kept. Any other file is text: one
// whitespace-separated "key value" pair per line, blank lines and lines
// starting with # ignored. Lines with a single field are skipped with a
// warning; fields after the second are ignored.
func LoadEntries(path string, log *zap.Logger) (*Data, error) {
	if log == nil {
		log = zap.NewNop()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading entries file: %w", err)
	}

	var entries []Entry
	if strings.EqualFold(filepath.Ext(path), ".json") {
		entries, err = parseJSON(raw)
	} else {
		entries, err = parseText(raw, log.With(zap.String("file", path)))
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &Data{Entries: entries}, nil
}

func parseJSON(raw []byte) ([]Entry, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		var s string
		if err := json.Unmarshal(doc[k], &s); err == nil {
			entries = append(entries, Entry{Key: k, Value: s})
			continue
		}
		var fields map[string]string
		if err := json.Unmarshal(doc[k], &fields); err != nil {
			return nil, fmt.Errorf("key %s: value must be a string or an object of strings", k)
		}
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		lines := make([]string, len(names))
		for i, name := range names {
			lines[i] = name + ": " + fields[name]
		}
		entries = append(entries, Entry{Key: k, Value: strings.Join(lines, "\n")})
	}
	return entries, nil
}

func parseText(raw []byte, log *zap.Logger) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			log.Warn("skipping entry without a value", zap.Int("line", lineNum), zap.String("text", line))
			continue
		}
		entries = append(entries, Entry{Key: parts[0], Value: parts[1]})
	}
	return entries, scanner.Err()
}
