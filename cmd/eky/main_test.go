package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maruel/eky/internal/store"
)

// run executes the command tree in-process.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&slog.LevelVar{}, &stdout, &stderr)
	// A nil slice makes cobra fall back to os.Args.
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.ExecuteContext(t.Context())
	return stdout.String(), stderr.String(), err
}

func newPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), store.DefaultFileName)
}

func TestCommands(t *testing.T) {
	type step struct {
		args []string
		want string
	}
	tests := []struct {
		name  string
		steps []step
	}{
		{"json string", []step{
			{[]string{"set", "k", `"hello"`}, ""},
			{[]string{"get", "k"}, "\"hello\"\n"},
		}},
		{"plain text tokens are joined", []step{
			{[]string{"set", "k", "plain", "text"}, ""},
			{[]string{"get", "k"}, "\"plain text\"\n"},
		}},
		{"number", []step{
			{[]string{"set", "a", "1"}, ""},
			{[]string{"get", "a"}, "1\n"},
		}},
		{"negative number", []step{
			{[]string{"set", "a", "-1"}, ""},
			{[]string{"get", "a"}, "-1\n"},
		}},
		{"object", []step{
			{[]string{"set", "o", `{"x": [1]}`}, ""},
			{[]string{"get", "o"}, "{\n  \"x\": [\n    1\n  ]\n}\n"},
			{[]string{"get", "-o", "yaml", "o"}, "x:\n  - 1\n"},
		}},
		{"missing", []step{
			{[]string{"get", "missing"}, "None\n"},
		}},
		{"falsy", []step{
			{[]string{"set", "z", "0"}, ""},
			{[]string{"set", "e", `""`}, ""},
			{[]string{"get", "z"}, "None\n"},
			{[]string{"get", "e"}, "None\n"},
			{[]string{"get", "--strict", "z"}, "0\n"},
			{[]string{"get", "--strict", "e"}, "\"\"\n"},
		}},
		{"list", []step{
			{[]string{"list"}, ""},
			{[]string{"set", "b", "1"}, ""},
			{[]string{"set", "a", "2"}, ""},
			{[]string{"set", "b", "3"}, ""},
			{[]string{"list"}, "b\na\n"},
		}},
		{"rm", []step{
			{[]string{"set", "a", "1"}, ""},
			{[]string{"set", "b", "2"}, ""},
			{[]string{"rm", "a", "c"}, ""},
			{[]string{"list"}, "b\n"},
		}},
		{"clear", []step{
			{[]string{"set", "a", "1"}, ""},
			{[]string{"clear"}, ""},
			{[]string{"clear"}, ""},
			{[]string{"list"}, ""},
			{[]string{"get", "a"}, "None\n"},
		}},
		{"dump", []step{
			{[]string{"dump"}, "{}\n"},
			{[]string{"set", "a", "1"}, ""},
			{[]string{"set", "b", "x"}, ""},
			{[]string{"dump"}, "{\n  \"a\": 1,\n  \"b\": \"x\"\n}\n"},
			{[]string{"dump", "--format", "yaml"}, "a: 1\nb: x\n"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := newPath(t)
			for _, s := range tt.steps {
				args := append([]string{"--file", path}, s.args...)
				stdout, stderr, err := run(t, args...)
				if err != nil {
					t.Fatalf("%v: %v (stderr %q)", s.args, err, stderr)
				}
				if stdout != s.want {
					t.Errorf("%v: stdout = %q, want %q", s.args, stdout, s.want)
				}
			}
		})
	}
}

func TestNoSubcommand(t *testing.T) {
	stdout, stderr, err := run(t)
	if !errors.Is(err, errUsage) {
		t.Fatalf("error = %v, want errUsage", err)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty", stdout)
	}
	if !strings.Contains(stderr, usageHint) {
		t.Errorf("stderr = %q, want usage hint", stderr)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"frob"}},
		{"get without key", []string{"get"}},
		{"set without value", []string{"set", "k"}},
		{"rm without key", []string{"rm"}},
		{"list with argument", []string{"list", "x"}},
		{"unknown format", []string{"get", "-o", "xml", "k"}},
		{"unknown dump format", []string{"dump", "-o", "xml"}},
		{"unknown log level", []string{"--log-level", "loud", "list"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--file", newPath(t)}, tt.args...)
			if _, _, err := run(t, args...); err == nil {
				t.Errorf("%v succeeded", tt.args)
			}
		})
	}
}

func TestGetStrictMissing(t *testing.T) {
	_, _, err := run(t, "--file", newPath(t), "get", "--strict", "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestFileFromEnv(t *testing.T) {
	path := newPath(t)
	t.Setenv("EKY_FILE", path)
	if _, _, err := run(t, "set", "k", "v"); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"k":"v"}` {
		t.Errorf("file = %q", b)
	}
}

func TestCorruptFile(t *testing.T) {
	path := newPath(t)
	if err := os.WriteFile(path, []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	stdout, stderr, err := run(t, "--file", path, "list")
	if err != nil {
		t.Fatalf("list on corrupt file failed: %v", err)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty", stdout)
	}
	if !strings.Contains(stderr, "Backing file is corrupt") {
		t.Errorf("stderr = %q, want a corruption warning", stderr)
	}
	if _, _, err := run(t, "--file", path, "set", "k", "1"); err != nil {
		t.Fatal(err)
	}
	stdout, stderr, err = run(t, "--file", path, "list")
	if err != nil || stdout != "k\n" {
		t.Errorf("list = %q, %v, want \"k\\n\", nil", stdout, err)
	}
	if stderr != "" {
		t.Errorf("stderr = %q after repair, want empty", stderr)
	}
}

func TestClearDirectory(t *testing.T) {
	dir := newPath(t)
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, _, err := run(t, "--file", dir, "clear"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Errorf("directory removed: %v", err)
	}
}

func TestNoLock(t *testing.T) {
	path := newPath(t)
	if _, _, err := run(t, "--file", path, "--no-lock", "set", "k", "v"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".lock"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("lock file created with --no-lock: %v", err)
	}
}

func TestVersion(t *testing.T) {
	stdout, _, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stdout, "eky ") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestPrintWatch(t *testing.T) {
	s := store.New(newPath(t))
	if err := s.Set("a", "1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("b", `{"x": true}`); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		keys []string
		want string
	}{
		{"all keys", nil, "---\na\nb\n"},
		{"selected", []string{"b", "c"}, "---\nb: {\"x\":true}\nc: None\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := printWatch(&buf, s, tt.keys); err != nil {
				t.Fatal(err)
			}
			if buf.String() != tt.want {
				t.Errorf("printWatch() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestEmptyFileNoWarning(t *testing.T) {
	path := newPath(t)
	if err := os.WriteFile(path, []byte(" \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, stderr, err := run(t, "--file", path, "list")
	if err != nil {
		t.Fatal(err)
	}
	if stderr != "" {
		t.Errorf("stderr = %q, want empty", stderr)
	}
}

func TestSetLogLevel(t *testing.T) {
	ll := &slog.LevelVar{}
	for name, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		if err := setLogLevel(ll, name); err != nil {
			t.Fatalf("setLogLevel(%q) failed: %v", name, err)
		}
		if ll.Level() != want {
			t.Errorf("setLogLevel(%q) = %v, want %v", name, ll.Level(), want)
		}
	}
}
