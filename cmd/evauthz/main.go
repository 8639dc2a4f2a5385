package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/oarkflow/evauthz"
	"github.com/oarkflow/evauthz/logger"
	"github.com/oarkflow/evauthz/stores"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "evauthz:", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "evauthz - inspect the charging-network permission catalog")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  evauthz validate [--catalog file]")
	fmt.Fprintln(w, "  evauthz scopes   --role R [--match resource:action]")
	fmt.Fprintln(w, "  evauthz explain  --role R --resource E --action A [--ctx key=value ...]")
	fmt.Fprintln(w, "  evauthz authorize-tag --tenant T --station CS --tag TAG [--action A]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Catalog files: .yaml, .yml, .json, .bin. Without --catalog, EVAUTHZ_CATALOG_FILE")
	fmt.Fprintln(w, "or the built-in catalog is used.")
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return errors.New("missing command")
	}
	cfg, err := evauthz.LoadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogFormat)

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "validate":
		return runValidate(cfg, rest, out)
	case "scopes":
		return runScopes(cfg, rest, out)
	case "explain":
		return runExplain(cfg, log, rest, out)
	case "authorize-tag":
		return runAuthorizeTag(cfg, log, rest, out)
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		printUsage(out)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func catalogFlag(fs *pflag.FlagSet, cfg *evauthz.Config) {
	fs.StringVar(&cfg.CatalogFile, "catalog", cfg.CatalogFile, "catalog file (default: built-in)")
}

func runValidate(cfg *evauthz.Config, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	catalogFlag(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	catalog, err := cfg.BuildCatalog()
	if err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	source := cfg.CatalogFile
	if source == "" {
		source = "built-in"
	}
	fmt.Fprintf(out, "Catalog is valid (%s)\n", source)
	fmt.Fprintf(out, "  Checksum: %s\n", catalog.Checksum())
	for _, r := range catalog.Roles() {
		parent, _ := catalog.Parent(r)
		line := fmt.Sprintf("  %-10s grants=%d scopes=%d", r, len(catalog.GrantsFor(r)), len(catalog.ActionsFor(r)))
		if parent != "" {
			line += " extends=" + string(parent)
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func runScopes(cfg *evauthz.Config, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("scopes", pflag.ContinueOnError)
	catalogFlag(fs, cfg)
	role := fs.String("role", "", "role to list")
	match := fs.String("match", "*", "scope pattern, e.g. transaction:* or *:read")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *role == "" {
		return errors.New("scopes: --role is required")
	}
	authz, err := newAuthorizer(cfg, logger.NewNullLogger())
	if err != nil {
		return err
	}
	if !authz.Engine().Catalog().HasRole(evauthz.Role(*role)) {
		return fmt.Errorf("scopes: unknown role %q", *role)
	}
	for _, s := range authz.ScopesMatching(evauthz.Role(*role), *match) {
		fmt.Fprintln(out, s)
	}
	return nil
}

func runExplain(cfg *evauthz.Config, log logger.Logger, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("explain", pflag.ContinueOnError)
	catalogFlag(fs, cfg)
	role := fs.String("role", "", "actor role")
	actorID := fs.String("actor", "cli", "actor id")
	tenant := fs.String("tenant", "", "tenant id")
	resource := fs.String("resource", "", "resource entity")
	action := fs.String("action", "", "action")
	pairs := fs.StringArray("ctx", nil, "context entry key=value; a,b for lists, null for unattached")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *role == "" || *resource == "" || *action == "" {
		return errors.New("explain: --role, --resource and --action are required")
	}
	c, err := parseContext(*pairs)
	if err != nil {
		return err
	}
	authz, err := newAuthorizer(cfg, log)
	if err != nil {
		return err
	}
	actor := &evauthz.Actor{ID: *actorID, TenantID: *tenant, Role: evauthz.Role(*role)}
	d, err := authz.Engine().Explain(context.Background(), actor, evauthz.Entity(*resource), evauthz.Action(*action), c)
	if err != nil {
		return err
	}
	verdict := "DENY"
	if d.Allowed {
		verdict = "ALLOW"
	}
	fmt.Fprintf(out, "%s %s %s:%s (%s)\n", verdict, *role, *resource, *action, d.Reason)
	if d.MatchedBy != "" {
		fmt.Fprintf(out, "  matched: %s\n", d.MatchedBy)
	}
	for _, line := range d.Trace {
		fmt.Fprintf(out, "  %s\n", line)
	}
	return nil
}

// runAuthorizeTag runs a badge scan against the configured stores, the way a
// station's authorize request would.
func runAuthorizeTag(cfg *evauthz.Config, log logger.Logger, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("authorize-tag", pflag.ContinueOnError)
	catalogFlag(fs, cfg)
	fs.StringVar(&cfg.SQLiteDSN, "sqlite", cfg.SQLiteDSN, "sqlite DSN")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "redis address (optional)")
	tenant := fs.String("tenant", "", "tenant id")
	stationID := fs.String("station", "", "charging station id")
	tag := fs.String("tag", "", "badge id")
	action := fs.String("action", string(evauthz.ActionRemoteStart), "station action")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenant == "" || *stationID == "" || *tag == "" {
		return errors.New("authorize-tag: --tenant, --station and --tag are required")
	}
	if !evauthz.KnownAction(evauthz.Action(*action)) {
		return fmt.Errorf("authorize-tag: %w: %q", evauthz.ErrUnknownAction, *action)
	}
	authz, err := newAuthorizer(cfg, log)
	if err != nil {
		return err
	}
	ctx := context.Background()
	backend, err := stores.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	guard := backend.NewSessionGuard(cfg, authz, log)
	station := &evauthz.ChargingStation{ID: *stationID, TenantID: *tenant}
	user, ok, err := guard.AuthorizeTag(ctx, *tenant, station, *tag, evauthz.Action(*action))
	if pe, isProv := evauthz.AsProvisioning(err); isProv {
		fmt.Fprintf(out, "REJECT %s: %s (user %s)\n", *tag, pe.Kind, pe.User.ID)
		return nil
	}
	if err != nil {
		return err
	}
	verdict := "DENY"
	if ok {
		verdict = "ALLOW"
	}
	fmt.Fprintf(out, "%s %s %s by %s\n", verdict, *tag, *action, user.ID)
	return nil
}

func newAuthorizer(cfg *evauthz.Config, log logger.Logger) (*evauthz.Authorizer, error) {
	catalog, err := cfg.BuildCatalog()
	if err != nil {
		return nil, err
	}
	engine, err := evauthz.NewEngine(catalog,
		evauthz.WithAuditSink(evauthz.NewLoggerAuditSink(log)),
		evauthz.WithDenialTrace(cfg.DebugDenials),
	)
	if err != nil {
		return nil, err
	}
	return evauthz.NewAuthorizer(engine), nil
}

// parseContext turns key=value pairs into a Context. "null" is the unattached
// sentinel, a value with commas is a list and "[]" is the empty list.
func parseContext(pairs []string) (evauthz.Context, error) {
	c := evauthz.Context{}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("bad --ctx %q, want key=value", p)
		}
		switch {
		case value == "null":
			c[key] = nil
		case value == "[]":
			c[key] = []string{}
		case strings.Contains(value, ","):
			var list []string
			for _, item := range strings.Split(value, ",") {
				if item = strings.TrimSpace(item); item != "" {
					list = append(list, item)
				}
			}
			c[key] = list
		default:
			c[key] = value
		}
	}
	return c, nil
}
