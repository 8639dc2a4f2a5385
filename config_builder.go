package evauthz

// ConfigBuilder provides a fluent API for assembling a CatalogConfig in code, e.g.
// for generating catalog files.
type ConfigBuilder struct {
	cfg *CatalogConfig
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{cfg: &CatalogConfig{Version: 1, Roles: []RoleConfig{}}}
}

func (b *ConfigBuilder) Version(v uint16) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

// Role starts a role section. Grants added through the returned builder land on
// this role.
func (b *ConfigBuilder) Role(name Role, extends Role) *RoleConfigBuilder {
	b.cfg.Roles = append(b.cfg.Roles, RoleConfig{Name: string(name), Extends: string(extends)})
	return &RoleConfigBuilder{parent: b, idx: len(b.cfg.Roles) - 1}
}

func (b *ConfigBuilder) Build() *CatalogConfig {
	return b.cfg
}

func (b *ConfigBuilder) Compile() (*Catalog, error) {
	return b.cfg.Compile()
}

func (b *ConfigBuilder) ToYAML() ([]byte, error) {
	return b.cfg.ToYAML()
}

func (b *ConfigBuilder) ToJSON() ([]byte, error) {
	return b.cfg.ToJSON()
}

// RoleConfigBuilder adds grants to one role of a ConfigBuilder.
type RoleConfigBuilder struct {
	parent *ConfigBuilder
	idx    int
}

func (r *RoleConfigBuilder) role() *RoleConfig {
	return &r.parent.cfg.Roles[r.idx]
}

// Grant appends an unconditional grant.
func (r *RoleConfigBuilder) Grant(resource Entity, actions ...Action) *RoleConfigBuilder {
	g := GrantConfig{Resource: string(resource)}
	for _, a := range actions {
		g.Actions = append(g.Actions, string(a))
	}
	rc := r.role()
	rc.Grants = append(rc.Grants, g)
	return r
}

// When sets the condition of the last grant. cond may be a Condition or its text
// form.
func (r *RoleConfigBuilder) When(cond any) *RoleConfigBuilder {
	rc := r.role()
	if len(rc.Grants) == 0 {
		return r
	}
	g := &rc.Grants[len(rc.Grants)-1]
	switch c := cond.(type) {
	case Condition:
		if c != nil {
			g.Condition = c.String()
		}
	case string:
		g.Condition = c
	}
	return r
}

// Attributes sets the attribute list of the last grant.
func (r *RoleConfigBuilder) Attributes(attrs ...string) *RoleConfigBuilder {
	rc := r.role()
	if len(rc.Grants) > 0 {
		rc.Grants[len(rc.Grants)-1].Attributes = attrs
	}
	return r
}

// Done returns to the catalog builder.
func (r *RoleConfigBuilder) Done() *ConfigBuilder {
	return r.parent
}
