package config

import (
	"os"
	"path/filepath"
	"testing"
)

func secretFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	return path
}

func TestResolveSecret(t *testing.T) {
	cases := []struct {
		name string
		env  string
		file *string
		want string
	}{
		{name: "env only", env: "env-value", want: "env-value"},
		{name: "neither", want: ""},
		{name: "file only", file: ptr("file-value\n"), want: "file-value"},
		{name: "file wins", env: "env-value", file: ptr("file-value"), want: "file-value"},
		{name: "trims", file: ptr("  padded  \n\n"), want: "padded"},
		{name: "empty file", env: "env-value", file: ptr(""), want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			const key = "SENTIENT_TEST_SECRET"
			t.Setenv(key, tc.env)
			t.Setenv(key+"_FILE", "")
			if tc.file != nil {
				t.Setenv(key+"_FILE", secretFile(t, *tc.file))
			}

			got, err := ResolveSecret(key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveSecretMissingFile(t *testing.T) {
	t.Setenv("SENTIENT_TEST_MISSING_FILE", filepath.Join(t.TempDir(), "absent"))
	if _, err := ResolveSecret("SENTIENT_TEST_MISSING"); err == nil {
		t.Fatal("expected error for unreadable secret file")
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("SENTIENT_TEST_ENV", "")
	if got := Env("SENTIENT_TEST_ENV", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
	t.Setenv("SENTIENT_TEST_ENV", "set")
	if got := Env("SENTIENT_TEST_ENV", "fallback"); got != "set" {
		t.Errorf("expected set, got %q", got)
	}
}

func ptr(s string) *string { return &s }
