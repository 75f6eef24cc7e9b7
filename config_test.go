package asyncexec_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/asyncexec"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()
	if err := asyncexec.DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*asyncexec.Config)
	}{
		{"zero pool", func(c *asyncexec.Config) { c.CorePoolSize = 0 }},
		{"zero queue", func(c *asyncexec.Config) { c.QueueCapacity = 0 }},
		{"zero page", func(c *asyncexec.Config) { c.AcquirePageSize = 0 }},
		{"negative retries", func(c *asyncexec.Config) { c.DefaultRetries = -1 }},
		{"zero lease", func(c *asyncexec.Config) { c.AsyncJobLockTime = 0 }},
		{"zero sweep interval", func(c *asyncexec.Config) { c.ResetExpiredJobsInterval = 0 }},
		{"unknown backoff", func(c *asyncexec.Config) { c.RetryBackoff = "fibonacci" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := asyncexec.DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, asyncexec.ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asyncexec.yaml")
	data := []byte("core_pool_size: 3\nqueue_capacity: 7\nnode_name: file-node\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ASYNCEXEC_NODE_NAME", "env-node")
	t.Setenv("ASYNCEXEC_RETRY_WAIT_TIME", "2s")

	cfg, err := asyncexec.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CorePoolSize != 3 {
		t.Errorf("CorePoolSize = %d, want 3", cfg.CorePoolSize)
	}
	if cfg.QueueCapacity != 7 {
		t.Errorf("QueueCapacity = %d, want 7", cfg.QueueCapacity)
	}
	if cfg.NodeName != "env-node" {
		t.Errorf("NodeName = %q, want env-node", cfg.NodeName)
	}
	if cfg.RetryWaitTime != 2*time.Second {
		t.Errorf("RetryWaitTime = %s, want 2s", cfg.RetryWaitTime)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := asyncexec.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
