package config

import (
	"github.com/spf13/pflag"
)

// Flag names shared by the commands that read configuration.
const (
	FlagSweepInterval     = "sweep-interval"
	FlagMaxAge            = "max-age"
	FlagMaxCount          = "max-count"
	FlagMinGap            = "min-gap"
	FlagSnapshotDir       = "snapshot-dir"
	FlagSnapshotPerHandle = "snapshot-per-handle"
	FlagSweepWorkers      = "sweep-workers"
	FlagLogLevel          = "log-level"
	FlagLogFormat         = "log-format"
	FlagMetricsAddr       = "metrics-addr"
)

// AddFlags registers the configuration flags on fs. Their defaults only
// document the built-in values; a flag takes effect when it is set
// explicitly, so a config file is not overridden by untouched flags.
func AddFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Int64(FlagSweepInterval, d.SweepInterval, "Seconds between retention sweeps")
	fs.Int64(FlagMaxAge, d.MaxAgeForFullRetention, "Seconds during which every snapshot is kept")
	fs.Uint64(FlagMaxCount, d.MaxCountForFullRetention, "Number of most recent snapshots always kept")
	fs.Uint64(FlagMinGap, d.MinimumGapBetweenKeptSnapshots, "Minimum sequence gap between older kept snapshots")
	fs.String(FlagSnapshotDir, d.SnapshotDirName, "Name of the per-directory snapshot directory")
	fs.Bool(FlagSnapshotPerHandle, d.SnapshotPerHandle, "Snapshot once per open file instead of on every write")
	fs.Int(FlagSweepWorkers, d.SweepWorkers, "Collections swept in parallel")
	fs.String(FlagLogLevel, d.Log.Level, "Log level (debug, info, warn, error)")
	fs.String(FlagLogFormat, d.Log.Format, "Log format (console, json)")
	fs.String(FlagMetricsAddr, d.MetricsAddr, "Address to serve Prometheus metrics on (empty disables)")
}

func (c *Config) applyFlags(fs *pflag.FlagSet) error {
	var err error
	set := func(name string, apply func() error) {
		if err != nil || fs.Lookup(name) == nil || !fs.Changed(name) {
			return
		}
		err = apply()
	}

	set(FlagSweepInterval, func() (e error) { c.SweepInterval, e = fs.GetInt64(FlagSweepInterval); return })
	set(FlagMaxAge, func() (e error) { c.MaxAgeForFullRetention, e = fs.GetInt64(FlagMaxAge); return })
	set(FlagMaxCount, func() (e error) { c.MaxCountForFullRetention, e = fs.GetUint64(FlagMaxCount); return })
	set(FlagMinGap, func() (e error) { c.MinimumGapBetweenKeptSnapshots, e = fs.GetUint64(FlagMinGap); return })
	set(FlagSnapshotDir, func() (e error) { c.SnapshotDirName, e = fs.GetString(FlagSnapshotDir); return })
	set(FlagSnapshotPerHandle, func() (e error) { c.SnapshotPerHandle, e = fs.GetBool(FlagSnapshotPerHandle); return })
	set(FlagSweepWorkers, func() (e error) { c.SweepWorkers, e = fs.GetInt(FlagSweepWorkers); return })
	set(FlagLogLevel, func() (e error) { c.Log.Level, e = fs.GetString(FlagLogLevel); return })
	set(FlagLogFormat, func() (e error) { c.Log.Format, e = fs.GetString(FlagLogFormat); return })
	set(FlagMetricsAddr, func() (e error) { c.MetricsAddr, e = fs.GetString(FlagMetricsAddr); return })
	return err
}
