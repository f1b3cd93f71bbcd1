package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "storaged",
	Short: "storaged - local node storage daemon",
	Long: `storaged owns the block devices of a single node. It classifies
them as SSD or HDD, wraps each in a btrfs pool, serves quota limited
volumes and virtual disks from the SSDs, hands whole HDDs to consumers,
and mounts content-addressed filesystem images (flists) on demand.

Everything is exposed over a local HTTP API.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"storaged version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(runCmd)
}
