// Package config loads the cffunctions project file, which names the
// functions to deploy, the distributions they attach to, and the key-value
// stores they read.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"gopkg.in/yaml.v3"

	"github.com/micahrl/cffunctions/internal/association"
	"github.com/micahrl/cffunctions/internal/distribution"
	"github.com/micahrl/cffunctions/internal/functions"
)

// DefaultPath is where the CLI looks when --config is not given.
const DefaultPath = "cffunctions.toml"

type Config struct {
	Region         string `toml:"region" yaml:"region"`
	PathPrefix     string `toml:"path-prefix" yaml:"path-prefix"`
	DefaultRuntime string `toml:"default-runtime" yaml:"default-runtime"`

	Functions      map[string]Function      `toml:"functions" yaml:"functions"`
	KeyValueStores map[string]KeyValueStore `toml:"key-value-stores" yaml:"key-value-stores"`

	// dir is the directory holding the config file. Relative handler and
	// entries paths resolve against it.
	dir string
}

type Function struct {
	Handler       string        `toml:"handler" yaml:"handler"`
	Description   string        `toml:"description" yaml:"description"`
	Runtime       string        `toml:"runtime" yaml:"runtime"`
	KeyValueStore string        `toml:"key-value-store" yaml:"key-value-store"`
	Associations  []Association `toml:"associations" yaml:"associations"`
}

type Association struct {
	DistributionID  string `toml:"distribution-id" yaml:"distribution-id"`
	EventType       string `toml:"event-type" yaml:"event-type"`
	BehaviorPattern string `toml:"behavior-pattern" yaml:"behavior-pattern"`
}

type KeyValueStore struct {
	EntriesFile string `toml:"entries-file" yaml:"entries-file"`
}

// Load reads a config file, choosing the decoder by extension: .yaml and
// .yml use YAML, anything else TOML. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := &Config{dir: filepath.Dir(path)}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	default:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("parsing config file %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}
	return cfg, nil
}

// FunctionNames returns the configured function names in sorted order.
func (c *Config) FunctionNames() []string {
	names := make([]string, 0, len(c.Functions))
	for name := range c.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandlerPath is the source file for the named function.
func (c *Config) HandlerPath(name string) string {
	return c.resolve(filepath.Join(c.PathPrefix, c.Functions[name].Handler))
}

// EntriesPath is the entries file for the named key-value store, or "" if
// the store has none.
func (c *Config) EntriesPath(store string) string {
	file := c.KeyValueStores[store].EntriesFile
	if file == "" {
		return ""
	}
	return c.resolve(file)
}

// RuntimeFor picks the function's runtime, then the file default, then the
// built-in default.
func (c *Config) RuntimeFor(name string) cftypes.FunctionRuntime {
	if rt := c.Functions[name].Runtime; rt != "" {
		return cftypes.FunctionRuntime(rt)
	}
	if c.DefaultRuntime != "" {
		return cftypes.FunctionRuntime(c.DefaultRuntime)
	}
	return functions.DefaultRuntime
}

// DesiredBindings lists every configured association keyed by function name.
// Functions without associations are omitted.
func (c *Config) DesiredBindings() map[string][]association.DesiredBinding {
	desired := make(map[string][]association.DesiredBinding)
	for _, name := range c.FunctionNames() {
		for _, a := range c.Functions[name].Associations {
			desired[name] = append(desired[name], association.DesiredBinding{
				FunctionName:   name,
				DistributionID: a.DistributionID,
				EventType:      distribution.EventType(a.EventType),
				PathPattern:    a.BehaviorPattern,
			})
		}
	}
	return desired
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}
