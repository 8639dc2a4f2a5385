package evauthz

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ============================================================================
// GRANT CATALOG
// ============================================================================

// Grant allows a role to perform Actions on Resource, optionally only while Condition
// holds. Attributes is a field projection mask and plays no part in decisions.
type Grant struct {
	Resource   Entity
	Actions    []Action
	Attributes []string
	Condition  Condition
}

func (g Grant) clone() Grant {
	g.Actions = slices.Clone(g.Actions)
	g.Attributes = slices.Clone(g.Attributes)
	g.Condition = cloneCondition(g.Condition)
	return g
}

// Allows reports whether the grant covers resource and action, ignoring its condition.
func (g *Grant) Allows(resource Entity, action Action) bool {
	if g.Resource != resource {
		return false
	}
	for _, a := range g.Actions {
		if a == action {
			return true
		}
	}
	return false
}

func (g *Grant) String() string {
	acts := make([]string, 0, len(g.Actions))
	for _, a := range g.Actions {
		acts = append(acts, string(a))
	}
	s := string(g.Resource) + ":" + strings.Join(acts, ",")
	if g.Condition != nil {
		s += " if " + g.Condition.String()
	}
	return s
}

// RoleDefinition is a role's own grants plus an optional parent whose grants it inherits.
type RoleDefinition struct {
	Role    Role
	Extends Role
	Grants  []Grant
}

type permKey struct {
	resource Entity
	action   Action
}

// Catalog is the compiled, validated, read-only grant table. It holds no locks and is
// safe for concurrent use once NewCatalog returns.
type Catalog struct {
	roles     []Role
	defs      map[Role]*RoleDefinition
	effective map[Role][]Grant
	index     map[Role]map[permKey][]Grant
	scopes    map[Role][]string
	checksum  string
}

// NewCatalog validates defs and compiles the effective grants of every role. Any
// problem is returned as a *ConfigurationError and must stop the process.
func NewCatalog(defs ...RoleDefinition) (*Catalog, error) {
	c := &Catalog{
		defs:      make(map[Role]*RoleDefinition, len(defs)),
		effective: make(map[Role][]Grant, len(defs)),
		index:     make(map[Role]map[permKey][]Grant, len(defs)),
		scopes:    make(map[Role][]string, len(defs)),
	}
	for i := range defs {
		d := defs[i]
		d.Grants = make([]Grant, len(defs[i].Grants))
		for j, g := range defs[i].Grants {
			d.Grants[j] = g.clone()
		}
		if d.Role == "" {
			return nil, configErrorf("catalog", "role definition #%d has no name", i)
		}
		if _, dup := c.defs[d.Role]; dup {
			return nil, configErrorf("catalog", "role %q defined twice", d.Role)
		}
		for j := range d.Grants {
			if err := validateGrant(&d.Grants[j]); err != nil {
				return nil, &ConfigurationError{
					Component: "catalog",
					Reason:    fmt.Sprintf("role %q grant #%d", d.Role, j),
					Err:       err,
				}
			}
		}
		c.defs[d.Role] = &d
		c.roles = append(c.roles, d.Role)
	}
	for _, r := range c.roles {
		if parent := c.defs[r].Extends; parent != "" {
			if _, ok := c.defs[parent]; !ok {
				return nil, configErrorf("catalog", "role %q extends unknown role %q", r, parent)
			}
		}
	}
	for _, r := range c.roles {
		if err := c.checkCycle(r); err != nil {
			return nil, err
		}
	}
	for _, r := range c.roles {
		eff := c.collect(r)
		c.effective[r] = eff
		idx := make(map[permKey][]Grant)
		set := make(map[string]struct{})
		for _, g := range eff {
			for _, a := range g.Actions {
				k := permKey{g.Resource, a}
				idx[k] = append(idx[k], g)
				set[string(g.Resource)+":"+string(a)] = struct{}{}
			}
		}
		c.index[r] = idx
		scopes := make([]string, 0, len(set))
		for s := range set {
			scopes = append(scopes, s)
		}
		sort.Strings(scopes)
		c.scopes[r] = scopes
	}
	c.checksum = c.computeChecksum()
	return c, nil
}

// MustCatalog is NewCatalog for static definitions that are known to be valid.
func MustCatalog(defs ...RoleDefinition) *Catalog {
	c, err := NewCatalog(defs...)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultCatalog compiles DefaultDefinitions.
func DefaultCatalog() (*Catalog, error) {
	return NewCatalog(DefaultDefinitions()...)
}

func validateGrant(g *Grant) error {
	if !KnownEntity(g.Resource) {
		return fmt.Errorf("%w: %q", ErrUnknownResource, g.Resource)
	}
	if len(g.Actions) == 0 {
		return fmt.Errorf("grant on %q has no actions", g.Resource)
	}
	for _, a := range g.Actions {
		if !KnownAction(a) {
			return fmt.Errorf("%w: %q on %q", ErrUnknownAction, a, g.Resource)
		}
	}
	if err := validateCondition(g.Condition); err != nil {
		return fmt.Errorf("grant on %q: %w", g.Resource, err)
	}
	return nil
}

// checkCycle walks the parent chain of r; any repeat is a cycle.
func (c *Catalog) checkCycle(r Role) error {
	visited := map[Role]bool{}
	path := []string{}
	for cur := r; cur != ""; cur = c.defs[cur].Extends {
		if visited[cur] {
			path = append(path, string(cur))
			return configErrorf("catalog", "cyclic inheritance: %s", strings.Join(path, " -> "))
		}
		visited[cur] = true
		path = append(path, string(cur))
	}
	return nil
}

// collect returns own grants followed by the parent's effective grants.
func (c *Catalog) collect(r Role) []Grant {
	var out []Grant
	for cur := r; cur != ""; cur = c.defs[cur].Extends {
		out = append(out, c.defs[cur].Grants...)
	}
	return out
}

// Roles lists the defined roles in catalog order.
func (c *Catalog) Roles() []Role {
	out := make([]Role, len(c.roles))
	copy(out, c.roles)
	return out
}

// HasRole reports whether r is defined.
func (c *Catalog) HasRole(r Role) bool {
	_, ok := c.defs[r]
	return ok
}

// Parent returns the role r extends, if any.
func (c *Catalog) Parent(r Role) (Role, bool) {
	d, ok := c.defs[r]
	if !ok || d.Extends == "" {
		return "", false
	}
	return d.Extends, true
}

// GrantsFor returns r's effective grants: its own first, then inherited ones, in
// catalog order. Unknown roles have no grants.
func (c *Catalog) GrantsFor(r Role) []Grant {
	eff := c.effective[r]
	out := make([]Grant, len(eff))
	for i, g := range eff {
		out[i] = g.clone()
	}
	return out
}

// ActionsFor returns the sorted "resource:action" strings r may perform under some
// condition.
func (c *Catalog) ActionsFor(r Role) []string {
	s := c.scopes[r]
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// Checksum identifies the compiled catalog content.
func (c *Catalog) Checksum() string {
	return c.checksum
}

// matching returns the grants of r covering resource and action. The slice is shared.
func (c *Catalog) matching(r Role, resource Entity, action Action) []Grant {
	return c.index[r][permKey{resource, action}]
}

func (c *Catalog) computeChecksum() string {
	h := sha256.New()
	for _, r := range c.roles {
		d := c.defs[r]
		fmt.Fprintf(h, "role %s extends %s\n", d.Role, d.Extends)
		for _, g := range d.Grants {
			fmt.Fprintf(h, "  %s [%s]\n", g.String(), strings.Join(g.Attributes, ","))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
