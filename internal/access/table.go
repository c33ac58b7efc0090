// Package access holds the route authorization table: a list of path
// prefixes, each with the minimum role level allowed to reach it.
package access

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed access.yaml
var defaultTable []byte

// LoginPath is where unauthenticated dashboard visitors are sent.
const LoginPath = "/login"

// Rule grants access to Prefix and everything below it to roles at or
// above MinRole.
type Rule struct {
	Prefix  string `yaml:"prefix"`
	MinRole uint8  `yaml:"min_role"`
}

// Table is an immutable set of rules sorted longest prefix first.
type Table struct {
	rules []Rule
}

type file struct {
	Rules []Rule `yaml:"rules"`
}

// Load parses a YAML table.
func Load(r io.Reader) (*Table, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("access table: %w", err)
	}
	return New(f.Rules)
}

// LoadFile parses the YAML table at path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Default returns the table compiled into the binary.
func Default() *Table {
	t, err := Load(strings.NewReader(string(defaultTable)))
	if err != nil {
		panic(err)
	}
	return t
}

// New validates rules and builds a table.
func New(rules []Rule) (*Table, error) {
	seen := make(map[string]bool, len(rules))
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if r.Prefix == "" || !strings.HasPrefix(r.Prefix, "/") {
			return nil, fmt.Errorf("access table: rule %d: prefix %q must start with /", i, r.Prefix)
		}
		if r.MinRole == 0 {
			return nil, fmt.Errorf("access table: rule %d (%s): min_role must be at least 1", i, r.Prefix)
		}
		r.Prefix = normalize(r.Prefix)
		if seen[r.Prefix] {
			return nil, fmt.Errorf("access table: duplicate prefix %s", r.Prefix)
		}
		seen[r.Prefix] = true
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].Prefix) > len(out[j].Prefix) })
	return &Table{rules: out}, nil
}

// Rules returns a copy of the rules in match order.
func (t *Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Match returns the rule with the longest prefix covering path. Matching
// is segment aware: /v1/parts covers /v1/parts/7 but not /v1/partsx.
func (t *Table) Match(path string) (Rule, bool) {
	path = normalize(path)
	for _, r := range t.rules {
		if covers(r.Prefix, path) {
			return r, true
		}
	}
	return Rule{}, false
}

// Allowed reports whether role may reach path. Paths outside every rule
// are allowed.
func (t *Table) Allowed(path string, role uint8) bool {
	r, ok := t.Match(path)
	return !ok || role >= r.MinRole
}

// Session is the part of a signed-in user the redirect decision needs.
type Session struct {
	RoleID      uint8
	DefaultPath string
}

// Decision is the outcome of Decide. Redirect is empty when Allowed.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
}

// Decide answers where a dashboard visitor of path should end up. A nil
// session means nobody is signed in.
func (t *Table) Decide(path string, s *Session) Decision {
	path = normalize(path)
	if path == LoginPath {
		if s != nil {
			return Decision{Redirect: t.home(s)}
		}
		return Decision{Allowed: true}
	}
	r, ok := t.Match(path)
	if !ok {
		return Decision{Allowed: true}
	}
	if s == nil {
		return Decision{Redirect: LoginPath + "?callbackUrl=" + url.QueryEscape(path)}
	}
	if s.RoleID >= r.MinRole {
		return Decision{Allowed: true}
	}
	return Decision{Redirect: t.home(s)}
}

// home is the session's default path, or / when that path is itself off
// limits for the role (a misconfigured role would otherwise loop).
func (t *Table) home(s *Session) string {
	if s.DefaultPath == "" || !t.Allowed(s.DefaultPath, s.RoleID) {
		return "/"
	}
	return normalize(s.DefaultPath)
}

func covers(prefix, path string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

func normalize(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
