package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gotap/tapd/config"
)

func TestNewAppliesDefaultsAndOptions(t *testing.T) {
	c := config.New(config.WithListenAddr(":1234"), config.WithMaxConcurrentJobs(3))
	if c.ListenAddr != ":1234" {
		t.Fatalf("expected overridden ListenAddr, got %q", c.ListenAddr)
	}
	if c.MaxConcurrentJobs != 3 {
		t.Fatalf("expected overridden MaxConcurrentJobs, got %d", c.MaxConcurrentJobs)
	}
	if c.ServerMaxRec != 10_000 {
		t.Fatalf("expected default ServerMaxRec, got %d", c.ServerMaxRec)
	}
}

func TestLoadParsesYAMLAndRequiresDSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tapd.yaml")
	contents := "listen_addr: \":9999\"\ndatabase_dsn: \"postgres://localhost/tapd\"\nserver_max_rec: 500\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.ListenAddr != ":9999" {
		t.Fatalf("expected YAML ListenAddr, got %q", c.ListenAddr)
	}
	if c.ServerMaxRec != 500 {
		t.Fatalf("expected YAML ServerMaxRec, got %d", c.ServerMaxRec)
	}
	if c.MaxExecutionDuration != 10*time.Minute {
		t.Fatalf("expected default MaxExecutionDuration to survive partial YAML, got %v", c.MaxExecutionDuration)
	}
}

func TestLoadRejectsMissingDSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tapd.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":9999\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected an error for missing database_dsn")
	}
}

func TestLoadOptionsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tapd.yaml")
	contents := "database_dsn: \"postgres://localhost/tapd\"\nlisten_addr: \":9999\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := config.Load(path, config.WithListenAddr(":8888"))
	if err != nil {
		t.Fatal(err)
	}
	if c.ListenAddr != ":8888" {
		t.Fatalf("expected option to override file, got %q", c.ListenAddr)
	}
}
