// Package cmd provides the command-line interface implementation for verfs.
//
// It uses the Cobra library for command structure; main wraps the root
// command with Fang for styling.
//
// The package is organized into the following commands:
//   - root: Main command coordinator and entry point
//   - mount: FUSE filesystem mounting with a background sweep
//   - history, restore: Inspecting and recovering snapshots of one file
//   - sweep: One-off retention pass
//   - verify: Unparseable names and abandoned staging files
//   - stats: File and snapshot counts
//   - seed: Synthetic snapshot histories for trying out a policy
//
// Each command is implemented as a separate file with its own constructor
// function that returns a *cobra.Command. Usage mistakes are reported with
// errors wrapping ErrUsage so that main can exit with status 2.
package cmd
