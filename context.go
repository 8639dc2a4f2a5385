package evauthz

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Context keys a condition may reference. Facade functions populate them per call.
const (
	KeyOwner      = "owner"
	KeyUser       = "user"
	KeyCompany    = "company"
	KeySite       = "site"
	KeyTag        = "tag"
	KeySites      = "sites"
	KeyCompanies  = "companies"
	KeySitesAdmin = "sitesAdmin"
	KeySitesOwner = "sitesOwner"
	KeyTagIDs     = "tagIDs"
)

var knownKeys = map[string]struct{}{
	KeyOwner: {}, KeyUser: {}, KeyCompany: {}, KeySite: {}, KeyTag: {},
	KeySites: {}, KeyCompanies: {}, KeySitesAdmin: {}, KeySitesOwner: {}, KeyTagIDs: {},
}

// Context is the per-call key/value bag conditions are evaluated against. A key that is
// present with a nil value means "not attached", e.g. a station outside any site.
type Context map[string]any

// With returns a copy of c with key set to value.
func (c Context) With(key string, value any) Context {
	out := make(Context, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	out[key] = value
	return out
}

// Snapshot renders the context as sorted "key=value" pairs for diagnostics. Only
// identifiers are ever stored in a Context so the snapshot is safe to log.
func (c Context) Snapshot() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+renderValue(c[k]))
	}
	return out
}

func renderValue(v any) string {
	switch vv := v.(type) {
	case nil:
		return "null"
	case string:
		return vv
	case []string:
		return "[" + strings.Join(vv, ",") + "]"
	case []any:
		parts := make([]string, 0, len(vv))
		for _, p := range vv {
			parts = append(parts, renderValue(p))
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprint(vv)
	}
}

// actorLists copies the actor's membership lists into the context.
func actorLists(a *Actor) Context {
	return Context{
		KeyOwner:      a.ID,
		KeySites:      slices.Clone(a.Sites),
		KeyCompanies:  slices.Clone(a.Companies),
		KeySitesAdmin: slices.Clone(a.SitesAdmin),
		KeySitesOwner: slices.Clone(a.SitesOwner),
		KeyTagIDs:     slices.Clone(a.TagIDs),
	}
}

// nullable maps "" to the nil sentinel.
func nullable(id string) any {
	if id == "" {
		return nil
	}
	return id
}
