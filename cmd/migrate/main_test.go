package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFlagsRejectsIncompleteCommands(t *testing.T) {
	cases := [][]string{
		{"-cmd", "create"},
		{"-cmd", "version"},
		{"-cmd", "reset"},
	}
	for _, args := range cases {
		if _, err := parseFlags(args, &bytes.Buffer{}); err == nil {
			t.Fatalf("expected %v to be rejected", args)
		}
	}
}

func TestParseFlagsDefaultsToUp(t *testing.T) {
	opts, err := parseFlags(nil, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.cmd != "up" || opts.dir == "" {
		t.Fatalf("unexpected defaults %+v", opts)
	}
}

func TestRunCreateAndValidateWithoutConfig(t *testing.T) {
	dir := t.TempDir()
	out := &bytes.Buffer{}

	if err := run(context.Background(), options{cmd: "create", dir: dir, name: "add deposits"}, out); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(out.String(), "_add_deposits.sql") {
		t.Fatalf("expected created path in output, got %q", out.String())
	}
	if err := run(context.Background(), options{cmd: "validate", dir: dir}, out); err != nil {
		t.Fatalf("validate: %v", err)
	}

	broken := filepath.Join(dir, "20000101000000_broken.sql")
	if err := os.WriteFile(broken, []byte("-- +goose Down\n-- +goose Up\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := run(context.Background(), options{cmd: "validate", dir: dir}, out); err == nil {
		t.Fatal("expected out-of-order markers to fail validation")
	}
}
