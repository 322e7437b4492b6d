package commands

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/maruel/filekv/internal/errs"
	"github.com/maruel/filekv/internal/value"
)

type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "settings.yaml")
	data := "lock_retries: 1\nlock_delay_ms: 0\nquiet_period_ms: 50\n"
	if err := os.WriteFile(cfg, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return &env{dir: filepath.Join(dir, "data"), config: cfg}
}

// run executes the command line and returns stdout.
func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, stderr bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append([]string{"--config", e.config, "--dir", e.dir}, args...))
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func (e *env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("%v error = %v", args, err)
	}
	return out
}

func TestSetGet(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "set", "level", "3")
	e.mustRun(t, "set", "name", "alice")
	e.mustRun(t, "set", "tags", `["a","b"]`)
	e.mustRun(t, "set", "level", "4")

	if got := e.mustRun(t, "keys"); got != "level\nname\ntags\n" {
		t.Errorf("keys = %q", got)
	}
	if got := e.mustRun(t, "values"); got != "4\n\"alice\"\n[\"a\",\"b\"]\n" {
		t.Errorf("values = %q", got)
	}
	if got := e.mustRun(t, "get", "name"); got != "\"alice\"\n" {
		t.Errorf("get name = %q", got)
	}
	if got := e.mustRun(t, "get", "--raw", "name"); got != "alice\n" {
		t.Errorf("get --raw name = %q", got)
	}
	if got := e.mustRun(t, "--format", "yaml", "--ext", "json", "get", "tags"); got != "- a\n- b\n" {
		t.Errorf("get tags as yaml = %q", got)
	}
	if _, err := e.run(t, "get", "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("get missing error = %v, want ErrNotFound", err)
	}
}

func TestRemoveClear(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "set", "a", "1")
	e.mustRun(t, "set", "b", "2")
	e.mustRun(t, "rm", "a")
	if got := e.mustRun(t, "keys"); got != "b\n" {
		t.Errorf("keys = %q", got)
	}
	if _, err := e.run(t, "rm", "a"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("rm missing error = %v, want ErrNotFound", err)
	}
	e.mustRun(t, "clear")
	if got := e.mustRun(t, "keys"); got != "" {
		t.Errorf("keys after clear = %q", got)
	}
}

func TestMissingDocument(t *testing.T) {
	e := newEnv(t)
	if _, err := e.run(t, "keys"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("keys error = %v, want ErrNotFound", err)
	}
	if got := e.mustRun(t, "exists"); got != "false\n" {
		t.Errorf("exists = %q", got)
	}
	if got := e.mustRun(t, "raw"); got != "" {
		t.Errorf("raw = %q", got)
	}
}

func TestEncrypted(t *testing.T) {
	e := newEnv(t)
	key := e.mustRun(t, "derive-key", "hunter2")
	key = strings.TrimSpace(key)
	if len(key) != 32 {
		t.Fatalf("derive-key = %q, want 32 characters", key)
	}
	e.mustRun(t, "--encrypt", "--key", key, "set", "secret", `"value"`)
	raw := e.mustRun(t, "raw")
	if strings.Contains(raw, "secret") || raw == "" {
		t.Errorf("raw = %q, want ciphertext", raw)
	}
	if got := e.mustRun(t, "--encrypt", "--key", key, "get", "--raw", "secret"); got != "value\n" {
		t.Errorf("get = %q", got)
	}
	if _, err := e.run(t, "--encrypt", "--key", "0123456789abcdef", "get", "secret"); !errors.Is(err, errs.ErrCipher) && !errors.Is(err, errs.ErrSerialization) {
		t.Errorf("get with wrong key error = %v, want ErrCipher", err)
	}
	if _, err := e.run(t, "get", "secret"); !errors.Is(err, errs.ErrSerialization) {
		t.Errorf("get without decryption error = %v, want ErrSerialization", err)
	}
}

func TestRawFiles(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "write-raw", `{"x": 1}`)
	if got := e.mustRun(t, "raw"); got != `{"x": 1}` {
		t.Errorf("raw = %q", got)
	}
	if got := e.mustRun(t, "get", "x"); got != "1\n" {
		t.Errorf("get x = %q", got)
	}
	e.mustRun(t, "--name", "other", "set", "y", "true")
	if got := e.mustRun(t, "files"); got != "data.json\nother.json\n" {
		t.Errorf("files = %q", got)
	}
	if got := e.mustRun(t, "files", "o*"); got != "other.json\n" {
		t.Errorf("files o* = %q", got)
	}
	if got := e.mustRun(t, "locked"); got != "false\n" {
		t.Errorf("locked = %q", got)
	}
	if got := e.mustRun(t, "delete"); got != "true\n" {
		t.Errorf("delete = %q", got)
	}
	if got := e.mustRun(t, "delete"); got != "false\n" {
		t.Errorf("second delete = %q", got)
	}
	if got := e.mustRun(t, "delete", "--all"); got != "true\n" {
		t.Errorf("delete --all = %q", got)
	}
	if _, err := os.Stat(e.dir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Stat() error = %v, want not exist", err)
	}
}

func TestExplicitFile(t *testing.T) {
	e := newEnv(t)
	p := filepath.Join(t.TempDir(), "sub", "doc.cfg")
	e.mustRun(t, "--file", p, "set", "k", "v")
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), "{\n  \"k\": \"v\"\n}\n"; got != want {
		t.Errorf("file = %q, want %q", got, want)
	}
}

func TestSettings(t *testing.T) {
	e := newEnv(t)
	out := e.mustRun(t, "--path-type", "root", "settings")
	if !strings.Contains(out, "path_type: root\n") || !strings.Contains(out, "lock_retries: 1\n") {
		t.Errorf("settings = %q", out)
	}
	p := filepath.Join(t.TempDir(), "out.yaml")
	e.mustRun(t, "settings", "-o", p)
	if _, err := os.Stat(p); err != nil {
		t.Errorf("Stat() error = %v", err)
	}
	if out := e.mustRun(t, "schema"); !strings.Contains(out, `"auto_save"`) {
		t.Errorf("schema = %q", out)
	}
	if out := e.mustRun(t, "version"); !strings.HasPrefix(out, "filekv ") {
		t.Errorf("version = %q", out)
	}
}

func TestInvalidFlags(t *testing.T) {
	e := newEnv(t)
	for _, args := range [][]string{
		{"--path-type", "nowhere", "keys"},
		{"--log-level", "loud", "keys"},
		{"--format", "xml", "keys"},
		{"--encrypt", "--key", "short", "keys"},
		{"--name", "a/b", "keys"},
		{"get"},
	} {
		if _, err := e.run(t, args...); err == nil {
			t.Errorf("%v succeeded, want error", args)
		}
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in       string
		asString bool
		want     value.Value
	}{
		{"42", false, value.Int(42)},
		{"1.5", false, value.Float(1.5)},
		{"true", false, value.Bool(true)},
		{"null", false, value.Null()},
		{`"quoted"`, false, value.String("quoted")},
		{"plain text", false, value.String("plain text")},
		{"42", true, value.String("42")},
		{`[1, "a"]`, false, value.List(value.Int(1), value.String("a"))},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseValue(tt.in, tt.asString)
			if !got.Equal(tt.want) || got.Kind() != tt.want.Kind() {
				t.Errorf("parseValue(%q, %v) = %s, want %s", tt.in, tt.asString, got, tt.want)
			}
		})
	}
}

func TestDropZero(t *testing.T) {
	tests := []struct {
		in   slog.Attr
		want string
	}{
		{slog.String("k", ""), ""},
		{slog.String("k", "v"), "k"},
		{slog.Bool("k", false), ""},
		{slog.Int("k", 0), ""},
		{slog.Int("k", 3), "k"},
		{slog.Any("k", nil), ""},
	}
	var got []string
	var want []string
	for _, tt := range tests {
		got = append(got, dropZero(nil, tt.in).Key)
		want = append(want, tt.want)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dropZero() keys mismatch (-want +got):\n%s", diff)
	}
}
