package evauthz

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ============================================================================
// PROCESS CONFIGURATION
// ============================================================================

// Config is read from EVAUTHZ_* environment variables.
type Config struct {
	DebugDenials      bool          `envconfig:"DEBUG_DENIALS" default:"false"`
	CatalogFile       string        `envconfig:"CATALOG_FILE"`
	SQLiteDSN         string        `envconfig:"SQLITE_DSN" default:"file:evauthz.db?cache=shared"`
	RedisAddr         string        `envconfig:"REDIS_ADDR"`
	OrgCacheTTL       time.Duration `envconfig:"ORG_CACHE_TTL" default:"30s"`
	OrgCacheCounters  int64         `envconfig:"ORG_CACHE_COUNTERS" default:"100000"`
	OrgCacheMaxCost   int64         `envconfig:"ORG_CACHE_MAX_COST" default:"10000"`
	PlaceholderDomain string        `envconfig:"PLACEHOLDER_DOMAIN" default:"badge.invalid"`
	LogFormat         string        `envconfig:"LOG_FORMAT" default:"phuslu"`
}

// LoadConfig reads the process configuration from the environment.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("evauthz", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.OrgCacheTTL < 0 {
		return nil, configErrorf("config", "negative org cache ttl %s", cfg.OrgCacheTTL)
	}
	return &cfg, nil
}

// BuildCatalog compiles CatalogFile when set, the built-in definitions otherwise.
func (c *Config) BuildCatalog() (*Catalog, error) {
	if c.CatalogFile == "" {
		return DefaultCatalog()
	}
	cc, err := NewConfigLoader().LoadFile(c.CatalogFile)
	if err != nil {
		return nil, err
	}
	return cc.Compile()
}

// ============================================================================
// CATALOG FILES
// ============================================================================

// CatalogConfig is the file form of a grant catalog. Conditions use the text grammar
// understood by ParseCondition.
type CatalogConfig struct {
	Version uint16       `json:"version" yaml:"version"`
	Roles   []RoleConfig `json:"roles" yaml:"roles"`
}

type RoleConfig struct {
	Name    string        `json:"name" yaml:"name"`
	Extends string        `json:"extends,omitempty" yaml:"extends,omitempty"`
	Grants  []GrantConfig `json:"grants" yaml:"grants"`
}

type GrantConfig struct {
	Resource   string   `json:"resource" yaml:"resource"`
	Actions    []string `json:"actions" yaml:"actions"`
	Attributes []string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Condition  string   `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// ConfigLoader loads catalog configuration from various formats
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*CatalogConfig, error) {
	cfg := &CatalogConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigurationError{Component: "catalog", Reason: "invalid yaml", Err: err}
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*CatalogConfig, error) {
	cfg := &CatalogConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigurationError{Component: "catalog", Reason: "invalid json", Err: err}
	}
	return cfg, nil
}

// LoadBinary loads from the compact binary form written by EncodeBinaryCatalog.
func (l *ConfigLoader) LoadBinary(data []byte) (*CatalogConfig, error) {
	cfg, err := decodeBinaryCatalog(bytes.NewReader(data))
	if err != nil {
		return nil, &ConfigurationError{Component: "catalog", Reason: "invalid binary catalog", Err: err}
	}
	return cfg, nil
}

// LoadFile picks the format from the file extension: .yaml/.yml, .json or .bin.
func (l *ConfigLoader) LoadFile(path string) (*CatalogConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Component: "catalog", Reason: "read " + path, Err: err}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	case ".json":
		return l.LoadJSON(data)
	case ".bin":
		return l.LoadBinary(data)
	default:
		return nil, configErrorf("catalog", "unsupported catalog file %q", path)
	}
}

// ToYAML exports config to YAML
func (c *CatalogConfig) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *CatalogConfig) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Definitions converts the file form into role definitions, parsing conditions.
func (c *CatalogConfig) Definitions() ([]RoleDefinition, error) {
	defs := make([]RoleDefinition, 0, len(c.Roles))
	for _, rc := range c.Roles {
		def := RoleDefinition{Role: Role(rc.Name), Extends: Role(rc.Extends)}
		for i, gc := range rc.Grants {
			cond, err := ParseCondition(gc.Condition)
			if err != nil {
				return nil, &ConfigurationError{
					Component: "catalog",
					Reason:    fmt.Sprintf("role %q grant #%d", rc.Name, i),
					Err:       err,
				}
			}
			g := Grant{
				Resource:   Entity(gc.Resource),
				Attributes: append([]string(nil), gc.Attributes...),
				Condition:  cond,
			}
			for _, a := range gc.Actions {
				g.Actions = append(g.Actions, Action(a))
			}
			def.Grants = append(def.Grants, g)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Compile parses and validates the configuration into a Catalog.
func (c *CatalogConfig) Compile() (*Catalog, error) {
	defs, err := c.Definitions()
	if err != nil {
		return nil, err
	}
	return NewCatalog(defs...)
}

// CatalogConfigFrom renders definitions back into file form.
func CatalogConfigFrom(defs []RoleDefinition) *CatalogConfig {
	cfg := &CatalogConfig{Version: 1}
	for _, d := range defs {
		rc := RoleConfig{Name: string(d.Role), Extends: string(d.Extends)}
		for _, g := range d.Grants {
			gc := GrantConfig{
				Resource:   string(g.Resource),
				Attributes: append([]string(nil), g.Attributes...),
			}
			for _, a := range g.Actions {
				gc.Actions = append(gc.Actions, string(a))
			}
			if g.Condition != nil {
				gc.Condition = g.Condition.String()
			}
			rc.Grants = append(rc.Grants, gc)
		}
		cfg.Roles = append(cfg.Roles, rc)
	}
	return cfg
}

// Binary protocol encoding/decoding
const (
	binaryMagic   = 0x4556 // "EV"
	binaryVersion = 1
)

// EncodeBinaryCatalog encodes config to binary format
func EncodeBinaryCatalog(cfg *CatalogConfig) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := encodeBinaryCatalog(cfg, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeBinaryCatalog(cfg *CatalogConfig, w io.Writer) error {
	buf := &bytes.Buffer{}

	// Header: magic(2) + version(2) + config_version(2)
	binary.Write(buf, binary.LittleEndian, uint16(binaryMagic))
	binary.Write(buf, binary.LittleEndian, uint16(binaryVersion))
	binary.Write(buf, binary.LittleEndian, cfg.Version)

	if err := writeLen(buf, "roles", len(cfg.Roles)); err != nil {
		return err
	}
	for _, r := range cfg.Roles {
		if err := writeString(buf, r.Name); err != nil {
			return err
		}
		if err := writeString(buf, r.Extends); err != nil {
			return err
		}
		if err := writeLen(buf, "grants of role "+r.Name, len(r.Grants)); err != nil {
			return err
		}
		for _, g := range r.Grants {
			if err := writeString(buf, g.Resource); err != nil {
				return err
			}
			if err := writeStrings(buf, g.Actions); err != nil {
				return err
			}
			if err := writeStrings(buf, g.Attributes); err != nil {
				return err
			}
			if err := writeString(buf, g.Condition); err != nil {
				return err
			}
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func decodeBinaryCatalog(r *bytes.Reader) (*CatalogConfig, error) {
	cfg := &CatalogConfig{}

	var magic, ver uint16
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != binaryMagic {
		return nil, fmt.Errorf("invalid magic: %x", magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &ver); err != nil {
		return nil, err
	}
	if ver != binaryVersion {
		return nil, fmt.Errorf("unsupported version: %d", ver)
	}
	if err := binary.Read(r, binary.LittleEndian, &cfg.Version); err != nil {
		return nil, err
	}
	var roleCount uint16
	if err := binary.Read(r, binary.LittleEndian, &roleCount); err != nil {
		return nil, err
	}
	cfg.Roles = make([]RoleConfig, roleCount)
	for i := range cfg.Roles {
		rc := &cfg.Roles[i]
		var err error
		if rc.Name, err = readString(r); err != nil {
			return nil, err
		}
		if rc.Extends, err = readString(r); err != nil {
			return nil, err
		}
		var grantCount uint16
		if err := binary.Read(r, binary.LittleEndian, &grantCount); err != nil {
			return nil, err
		}
		rc.Grants = make([]GrantConfig, grantCount)
		for j := range rc.Grants {
			g := &rc.Grants[j]
			if g.Resource, err = readString(r); err != nil {
				return nil, err
			}
			if g.Actions, err = readStrings(r); err != nil {
				return nil, err
			}
			if g.Attributes, err = readStrings(r); err != nil {
				return nil, err
			}
			if g.Condition, err = readString(r); err != nil {
				return nil, err
			}
		}
	}
	return cfg, nil
}

// writeLen writes a uint16 length prefix, refusing values it cannot hold.
func writeLen(buf *bytes.Buffer, what string, n int) error {
	if n > math.MaxUint16 {
		return fmt.Errorf("binary catalog: %s too long (%d > %d)", what, n, math.MaxUint16)
	}
	return binary.Write(buf, binary.LittleEndian, uint16(n))
}

func writeString(buf *bytes.Buffer, s string) error {
	if err := writeLen(buf, "string", len(s)); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func writeStrings(buf *bytes.Buffer, ss []string) error {
	if err := writeLen(buf, "list", len(ss)); err != nil {
		return err
	}
	for _, s := range ss {
		if err := writeString(buf, s); err != nil {
			return err
		}
	}
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var l uint16
	if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
		return "", err
	}
	b := make([]byte, l)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readStrings(r *bytes.Reader) ([]string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]string, n)
	for i := range out {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
