package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dendrascience/verfs/config"
	"github.com/dendrascience/verfs/logging"
	"github.com/dendrascience/verfs/util"
)

// ErrUsage marks command-line mistakes. main exits with status 2 for them.
var ErrUsage = errors.New("usage error")

// ErrIssuesFound is returned by checks that completed but found problems.
var ErrIssuesFound = errors.New("issues found")

const configFlag = "config"

// argsNamed requires exactly the named positional arguments and reports the
// first missing one by name.
func argsNamed(names ...string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < len(names) {
			return fmt.Errorf("%w: missing %s", ErrUsage, names[len(args)])
		}
		if len(args) > len(names) {
			return fmt.Errorf("%w: unexpected argument %q", ErrUsage, args[len(names)])
		}
		return nil
	}
}

// addConfigFlags registers --config and the configuration overrides.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringP(configFlag, "c", "", "Path to a YAML configuration file")
	config.AddFlags(cmd.Flags())
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString(configFlag)
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return config.Config{}, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, _, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

// resolveBackend turns the BACKEND argument into an absolute directory path.
func resolveBackend(arg string) (string, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("backend: %w", err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("backend %s is not a directory", abs)
	}
	return abs, nil
}

// resolveFile maps a PATH argument to its location in the backend. PATH is
// read as a path inside the mount, with or without the leading slash.
func resolveFile(tr util.Translator, arg string) (string, error) {
	virtual := "/" + strings.TrimPrefix(filepath.ToSlash(arg), "/")
	p, err := tr.Translate(virtual)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUsage, arg, err)
	}
	if p == tr.Root() {
		return "", fmt.Errorf("%w: %s names the backend root, not a file", ErrUsage, arg)
	}
	return p, nil
}
