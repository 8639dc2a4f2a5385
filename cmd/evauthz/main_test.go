package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oarkflow/evauthz"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("EVAUTHZ_LOG_FORMAT", "null")
	var out bytes.Buffer
	err := run(args, &out)
	return out.String(), err
}

func TestParseContext(t *testing.T) {
	c, err := parseContext([]string{"site=null", "sites=s1, s2", "tagIDs=[]", "owner=u1"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v, ok := c["site"]; !ok || v != nil {
		t.Fatalf("expected site to be the nil sentinel, got %v (present=%v)", v, ok)
	}
	if list, _ := c["sites"].([]string); len(list) != 2 || list[1] != "s2" {
		t.Fatalf("expected sites list, got %#v", c["sites"])
	}
	if list, ok := c["tagIDs"].([]string); !ok || len(list) != 0 {
		t.Fatalf("expected empty list, got %#v", c["tagIDs"])
	}
	if c["owner"] != "u1" {
		t.Fatalf("expected owner u1, got %v", c["owner"])
	}
	if _, err := parseContext([]string{"novalue"}); err == nil {
		t.Fatalf("expected error for entry without =")
	}
}

func TestValidateBuiltIn(t *testing.T) {
	out, err := runCLI(t, "validate")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "Catalog is valid (built-in)") || !strings.Contains(out, "Checksum:") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, string(evauthz.RoleSuperAdmin)) {
		t.Fatalf("expected roles listed:\n%s", out)
	}
}

func TestValidateRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	content := "version: 1\nroles:\n  - name: basic\n    extends: ghost\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := runCLI(t, "validate", "--catalog", path); err == nil {
		t.Fatalf("expected a missing parent to fail validation")
	}
}

func TestScopes(t *testing.T) {
	out, err := runCLI(t, "scopes", "--role", "basic", "--match", "site:*")
	if err != nil {
		t.Fatalf("scopes: %v", err)
	}
	lines := strings.Fields(out)
	if len(lines) == 0 {
		t.Fatalf("expected site scopes for basic")
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, "site:") {
			t.Fatalf("scope %q does not match site:*", l)
		}
	}
	if _, err := runCLI(t, "scopes", "--role", "nobody"); err == nil {
		t.Fatalf("expected unknown role to fail")
	}
}

func TestExplain(t *testing.T) {
	out, err := runCLI(t, "explain", "--role", "basic", "--resource", "site", "--action", "read",
		"--ctx", "site=s1", "--ctx", "sites=s1,s2")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if !strings.HasPrefix(out, "ALLOW basic site:read") {
		t.Fatalf("expected allow, got:\n%s", out)
	}

	out, err = runCLI(t, "explain", "--role", "basic", "--resource", "site", "--action", "read",
		"--ctx", "site=s9", "--ctx", "sites=s1,s2")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if !strings.HasPrefix(out, "DENY basic site:read") {
		t.Fatalf("expected deny, got:\n%s", out)
	}

	if _, err := runCLI(t, "explain", "--role", "basic", "--resource", "spaceship", "--action", "read"); err == nil {
		t.Fatalf("expected unknown resource to fail")
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := runCLI(t, "frobnicate"); err == nil {
		t.Fatalf("expected unknown command to fail")
	}
}

func TestAuthorizeTagProvisionsUnknownBadge(t *testing.T) {
	t.Setenv("EVAUTHZ_SQLITE_DSN", ":memory:")
	out, err := runCLI(t, "authorize-tag", "--tenant", "t1", "--station", "cs1", "--tag", "F00D")
	if err != nil {
		t.Fatalf("authorize-tag: %v", err)
	}
	want := "REJECT F00D: created (user "
	if !strings.Contains(out, want) {
		t.Fatalf("expected %q in output:\n%s", want, out)
	}
	if _, err := runCLI(t, "authorize-tag", "--tenant", "t1"); err == nil {
		t.Fatalf("expected missing flags to fail")
	}
}

func TestAuthorizeTagRejectsUnknownAction(t *testing.T) {
	t.Setenv("EVAUTHZ_SQLITE_DSN", ":memory:")
	out, err := runCLI(t, "authorize-tag", "--tenant", "t1", "--station", "cs1", "--tag", "F00D", "--action", "Authorize")
	if !errors.Is(err, evauthz.ErrUnknownAction) {
		t.Fatalf("expected unknown action error, got %v", err)
	}
	if strings.Contains(out, "F00D") {
		t.Fatalf("expected no scan output, got:\n%s", out)
	}
}
