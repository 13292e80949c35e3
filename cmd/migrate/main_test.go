package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/angelmondragon/tablerewards-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestRunRejectsUsageErrors(t *testing.T) {
	cases := []options{
		{cmd: "create", dir: t.TempDir()},
		{cmd: "version", dir: t.TempDir()},
		{cmd: "redo", dir: t.TempDir()},
	}
	for _, opts := range cases {
		if err := run(context.Background(), testLogger(), opts); !errors.Is(err, errUsage) {
			t.Fatalf("expected usage error for %+v, got %v", opts, err)
		}
	}
}

func TestRunCreateThenValidate(t *testing.T) {
	dir := t.TempDir()
	if err := run(context.Background(), testLogger(), options{cmd: "create", dir: dir, name: "add plan archived_at"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one migration file, got %v (%v)", entries, err)
	}
	if filepath.Ext(entries[0].Name()) != ".sql" {
		t.Fatalf("unexpected file %s", entries[0].Name())
	}
	if err := run(context.Background(), testLogger(), options{cmd: "validate", dir: dir}); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
