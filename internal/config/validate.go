package config

import (
	"fmt"
	"regexp"
	"slices"

	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"go.uber.org/multierr"

	"github.com/micahrl/cffunctions/internal/distribution"
)

var functionName = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidationError describes a single problem in the config file.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the whole file and returns every problem found. Returns
// nil if valid.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if len(c.Functions) == 0 {
		add("functions", "no functions configured")
	}
	if c.DefaultRuntime != "" && !knownRuntime(c.DefaultRuntime) {
		add("default-runtime", "unknown runtime %q", c.DefaultRuntime)
	}

	for _, name := range c.FunctionNames() {
		fn := c.Functions[name]
		field := "functions." + name

		if !functionName.MatchString(name) {
			add(field, "name must be 1-64 letters, digits, hyphens or underscores")
		}
		if fn.Handler == "" {
			add(field+".handler", "required")
		}
		if fn.Runtime != "" && !knownRuntime(fn.Runtime) {
			add(field+".runtime", "unknown runtime %q", fn.Runtime)
		}
		if fn.KeyValueStore != "" {
			if _, ok := c.KeyValueStores[fn.KeyValueStore]; !ok {
				add(field+".key-value-store", "no key-value-stores.%s section", fn.KeyValueStore)
			}
		}

		for i, a := range fn.Associations {
			afield := fmt.Sprintf("%s.associations[%d]", field, i)
			if a.DistributionID == "" {
				add(afield+".distribution-id", "required")
			}
			if a.BehaviorPattern == "" {
				add(afield+".behavior-pattern", "required (use %q for the default behavior)", distribution.DefaultPattern)
			}
			if !distribution.EventType(a.EventType).Valid() {
				add(afield+".event-type", "must be %q or %q, got %q",
					distribution.ViewerRequest, distribution.ViewerResponse, a.EventType)
			}
		}
	}
	return errs
}

// Check is Validate folded into a single error.
func (c *Config) Check() error {
	var err error
	for _, e := range c.Validate() {
		err = multierr.Append(err, e)
	}
	return err
}

func knownRuntime(rt string) bool {
	return slices.Contains(cftypes.FunctionRuntime("").Values(), cftypes.FunctionRuntime(rt))
}
