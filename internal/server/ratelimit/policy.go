package ratelimit

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Scope names of the built-in policies.
const (
	ScopeGlobal      = "global"
	ScopeLogin       = "login"
	ScopeRegister    = "register"
	ScopeVerifyEmail = "verify_email"
)

// Policy bounds requests per window for one scope.
type Policy struct {
	Name   string        `yaml:"-"`
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
	// Key is the key template, see Render.
	Key string `yaml:"key"`
}

// Validate checks that the policy can be enforced.
func (p Policy) Validate() error {
	if p.Max <= 0 {
		return fmt.Errorf("policy %q: max must be positive", p.Name)
	}
	if p.Window <= 0 {
		return fmt.Errorf("policy %q: window must be positive", p.Name)
	}
	if p.Key == "" {
		return fmt.Errorf("policy %q: key template is empty", p.Name)
	}
	return nil
}

// Policies is the limiter configuration table.
type Policies struct {
	Global Policy            `yaml:"global"`
	Routes map[string]Policy `yaml:"routes"`
}

// DefaultPolicies returns the built-in table.
func DefaultPolicies() Policies {
	return Policies{
		Global: Policy{Name: ScopeGlobal, Max: 100, Window: time.Minute, Key: "{principal}"},
		Routes: map[string]Policy{
			ScopeLogin:       {Name: ScopeLogin, Max: 5, Window: time.Minute, Key: "login:{ip}"},
			ScopeRegister:    {Name: ScopeRegister, Max: 3, Window: time.Minute, Key: "register:{ip}"},
			ScopeVerifyEmail: {Name: ScopeVerifyEmail, Max: 5, Window: time.Minute, Key: "verify-email:{ip}"},
		},
	}
}

// Validate checks the global policy and every route policy.
func (p Policies) Validate() error {
	if err := p.Global.Validate(); err != nil {
		return err
	}
	for _, rp := range p.Routes {
		if err := rp.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SortedRoutes returns the route policies ordered by scope name.
func (p Policies) SortedRoutes() []Policy {
	out := make([]Policy, 0, len(p.Routes))
	for _, name := range slices.Sorted(maps.Keys(p.Routes)) {
		out = append(out, p.Routes[name])
	}
	return out
}

// LoadPolicies reads a YAML policy file and overlays it on DefaultPolicies.
// Fields left out of a policy keep their default value; routes that are not
// built in must be fully specified.
//
//	global: {max: 100, window: 60s, key: "{principal}"}
//	routes:
//	  login: {max: 10, window: 1m}
func LoadPolicies(path string) (Policies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policies{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicies(data)
}

// ParsePolicies is LoadPolicies for an in-memory document.
func ParsePolicies(data []byte) (Policies, error) {
	var file Policies
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Policies{}, fmt.Errorf("parse policy file: %w", err)
	}

	out := DefaultPolicies()
	out.Global = merge(out.Global, file.Global)

	for name, rp := range file.Routes {
		out.Routes[name] = merge(out.Routes[name], rp)
	}
	for name, rp := range out.Routes {
		rp.Name = name
		out.Routes[name] = rp
	}
	out.Global.Name = ScopeGlobal

	if err := out.Validate(); err != nil {
		return Policies{}, err
	}
	return out, nil
}

func merge(base, over Policy) Policy {
	if over.Max != 0 {
		base.Max = over.Max
	}
	if over.Window != 0 {
		base.Window = over.Window
	}
	if over.Key != "" {
		base.Key = over.Key
	}
	return base
}
