package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/five82/tally/internal/app"
	"github.com/five82/tally/internal/classapi"
	"github.com/five82/tally/internal/classd"
	"github.com/five82/tally/internal/prefs"
)

type cliEnv struct {
	storeURL  string
	prefsPath string
	dir       string
	client    *classapi.Client
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	db, err := classd.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	srv := httptest.NewServer(classd.New(db, classd.Options{CacheTTL: -1}).Handler())
	t.Cleanup(srv.Close)

	client, err := classapi.NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	dir := t.TempDir()
	return &cliEnv{
		storeURL:  srv.URL,
		prefsPath: filepath.Join(dir, "prefs.toml"),
		dir:       dir,
		client:    client,
	}
}

// seed creates an open grouped session with data and remembers it.
func (e *cliEnv) seed(t *testing.T) classapi.Credentials {
	t.Helper()
	ctx := context.Background()
	creds, err := e.client.CreateSession(ctx, classapi.NewSession{Variables: []string{"Height"}, Groups: []string{"Control", "Treatment"}})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := e.client.SetEnabled(ctx, creds.Code, creds.Admin, true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if err := e.client.WriteGroup(ctx, creds.Code, 1, []float64{170, 172.5}); err != nil {
		t.Fatalf("WriteGroup: %v", err)
	}
	if err := e.client.WriteGroup(ctx, creds.Code, 2, []float64{160}); err != nil {
		t.Fatalf("WriteGroup: %v", err)
	}

	var p prefs.Prefs
	p.Remember(creds.Code, creds.Admin)
	if err := prefs.Save(e.prefsPath, p); err != nil {
		t.Fatalf("Save prefs: %v", err)
	}
	return creds
}

func (e *cliEnv) run(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{
		"--config", filepath.Join(e.dir, "config.toml"),
		"--prefs", e.prefsPath,
		"--store", e.storeURL,
	}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd()
	got := make(map[string]bool)
	for _, cmd := range root.Commands() {
		got[cmd.Name()] = true
	}
	for _, name := range []string{"join", "create", "info", "extend", "export", "serve"} {
		if !got[name] {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}

func TestInfo_UsesRememberedSession(t *testing.T) {
	env := newCLIEnv(t)
	creds := env.seed(t)

	out, err := env.run("info")
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	for _, want := range []string{creds.Code, "grouped", "Control, Treatment", "open", "Admin:      yes"} {
		if !strings.Contains(out, want) {
			t.Fatalf("info output missing %q:\n%s", want, out)
		}
	}
}

func TestInfo_NoSession(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("info")
	if !errors.Is(err, app.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestExport_CSVToStdout(t *testing.T) {
	env := newCLIEnv(t)
	creds := env.seed(t)

	out, err := env.run("export", strings.ToLower(creds.Code))
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	want := "group,Height\nControl,170\nControl,172.5\nTreatment,160\n"
	if out != want {
		t.Fatalf("export output = %q, want %q", out, want)
	}
}

func TestExport_JSONToFile(t *testing.T) {
	env := newCLIEnv(t)
	env.seed(t)

	path := filepath.Join(env.dir, "out.json")
	if _, err := env.run("export", "--format", "json", "-o", path); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), `"Treatment"`) {
		t.Fatalf("unexpected export:\n%s", data)
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	env := newCLIEnv(t)
	env.seed(t)
	if _, err := env.run("export", "--format", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestExtend_RequiresToken(t *testing.T) {
	env := newCLIEnv(t)
	creds := env.seed(t)

	out, err := env.run("extend")
	if err != nil {
		t.Fatalf("extend failed: %v", err)
	}
	if !strings.Contains(out, creds.Code+" now expires") {
		t.Fatalf("unexpected output: %q", out)
	}

	// A session nobody remembered has no token to fall back on.
	other, err := env.client.CreateSession(context.Background(), classapi.NewSession{Variables: []string{"Arm", "Height"}})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := env.run("extend", other.Code); err == nil || !strings.Contains(err.Error(), "pass --admin") {
		t.Fatalf("expected missing token error, got %v", err)
	}
	if _, err := env.run("extend", other.Code, "--admin", other.Admin); err != nil {
		t.Fatalf("extend with explicit token failed: %v", err)
	}
}

func TestCreate_ValidatesVariables(t *testing.T) {
	env := newCLIEnv(t)
	tests := [][]string{
		{"create"},
		{"create", "-v", "a", "-v", "b", "-v", "c"},
		{"create", "-v", "Arm", "-v", "Height", "-g", "Control"},
	}
	for _, args := range tests {
		if _, err := env.run(args...); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}
