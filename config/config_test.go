package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		check   func(t *testing.T, c Config)
		wantErr bool
	}{
		{
			name: "empty file keeps defaults",
			yaml: "",
			check: func(t *testing.T, c Config) {
				if c != Default() {
					t.Errorf("got %+v, want defaults", c)
				}
			},
		},
		{
			name: "all retention keys",
			yaml: `
sweep_interval: 60
max_age_for_full_retention: 3600
max_count_for_full_retention: 3
minimum_gap_between_kept_snapshots: 2
snapshot_dir_name: .history
snapshot_per_handle: true
sweep_workers: 4
log:
  level: debug
  format: json
metrics_addr: ":9100"
`,
			check: func(t *testing.T, c Config) {
				if c.Interval() != time.Minute {
					t.Errorf("Interval() = %v", c.Interval())
				}
				p := c.Policy()
				if p.MaxAge != time.Hour || p.MaxCount != 3 || p.MinGap != 2 {
					t.Errorf("Policy() = %+v", p)
				}
				if c.Layout().DirName != ".history" || !c.SnapshotPerHandle || c.SweepWorkers != 4 {
					t.Errorf("got %+v", c)
				}
				if c.Log.Level != "debug" || c.Log.Format != "json" || c.MetricsAddr != ":9100" {
					t.Errorf("got %+v", c)
				}
			},
		},
		{
			name: "explicit zero gap is kept",
			yaml: "minimum_gap_between_kept_snapshots: 0\n",
			check: func(t *testing.T, c Config) {
				if c.MinimumGapBetweenKeptSnapshots != 0 {
					t.Errorf("gap = %d, want 0", c.MinimumGapBetweenKeptSnapshots)
				}
				if c.SweepInterval != 300 {
					t.Errorf("unrelated default changed: %d", c.SweepInterval)
				}
			},
		},
		{name: "unknown key", yaml: "sweep_intervall: 5\n", wantErr: true},
		{name: "wrong type", yaml: "sweep_interval: soon\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(strings.NewReader(tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, c)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero interval", func(c *Config) { c.SweepInterval = 0 }, false},
		{"negative age", func(c *Config) { c.MaxAgeForFullRetention = -1 }, false},
		{"no workers", func(c *Config) { c.SweepWorkers = 0 }, false},
		{"empty dir name", func(c *Config) { c.SnapshotDirName = "" }, false},
		{"dotdot dir name", func(c *Config) { c.SnapshotDirName = ".." }, false},
		{"nested dir name", func(c *Config) { c.SnapshotDirName = "a/b" }, false},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			if err := c.Validate(); (err == nil) != tt.valid {
				t.Errorf("Validate() error = %v, want valid=%v", err, tt.valid)
			}
		})
	}
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verfs.yaml")
	yaml := "sweep_interval: 60\nmax_count_for_full_retention: 3\nsnapshot_dir_name: .history\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	if err := fs.Parse([]string{"--max-count=7", "--log-format=json"}); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path, fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.SweepInterval != 60 {
		t.Errorf("untouched flag overrode the file: interval = %d", c.SweepInterval)
	}
	if c.MaxCountForFullRetention != 7 {
		t.Errorf("max count = %d, want flag value 7", c.MaxCountForFullRetention)
	}
	if c.SnapshotDirName != ".history" || c.Log.Format != "json" {
		t.Errorf("got %+v", c)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	if err := fs.Parse([]string{"--sweep-workers=0"}); err != nil {
		t.Fatal(err)
	}
	if _, err := Load("", fs); err == nil {
		t.Error("Load accepted sweep_workers=0")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("Load accepted a missing file")
	}
}
