package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mcdc-perf/perfsuite/suite"
)

var (
	// CLI flags shared by every subcommand
	logLevel      string // Log verbosity level
	rootDir       string // Suite root holding task files, templates and test_suite/
	platformsFile string // Optional TOML file of platform profiles
	codeVersion   string // MC/DC version; read from the Python environment when empty
	pythonBin     string // Python interpreter used in job files and for version probing

	// CLI flags of the commands that act on one platform
	platformName string // Target platform, resolved against the platform table

	// resolved by resolvePlatform before a platform command runs
	platform suite.PlatformProfile
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "perfsuite",
	Short: "MC/DC performance test suite: job generation, submission and reduction",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q", logLevel)
		}
		logrus.SetLevel(level)
		return nil
	},
}

// loadPlatforms returns the built-in platform table with any overrides applied.
func loadPlatforms() (suite.PlatformTable, error) {
	table := suite.DefaultPlatforms()
	if platformsFile == "" {
		return table, nil
	}
	return suite.LoadPlatformOverrides(platformsFile, table)
}

// resolvePlatform validates --platform against the platform table. It runs as
// a PreRunE so an unknown name is reported as a usage error.
func resolvePlatform(cmd *cobra.Command, args []string) error {
	table, err := loadPlatforms()
	if err != nil {
		return err
	}
	p, err := table.Lookup(platformName)
	if err != nil {
		return err
	}
	platform = p
	return nil
}

// addPlatformFlag registers the required --platform flag on c.
func addPlatformFlag(c *cobra.Command, persistent bool) {
	if persistent {
		c.PersistentFlags().StringVar(&platformName, "platform", "", "Target platform (see `perfsuite platforms`)")
		_ = c.MarkPersistentFlagRequired("platform")
		return
	}
	c.Flags().StringVar(&platformName, "platform", "", "Target platform (see `perfsuite platforms`)")
	_ = c.MarkFlagRequired("platform")
}

// resolveVersion returns --code-version or asks the Python environment.
func resolveVersion(ctx context.Context, r suite.Runner) (string, error) {
	if codeVersion != "" {
		return codeVersion, nil
	}
	return suite.ProbeVersion(ctx, r, pythonBin)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags shared by all subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "Suite root directory")
	rootCmd.PersistentFlags().StringVar(&platformsFile, "platforms", "", "TOML file adding or replacing platform profiles")
	rootCmd.PersistentFlags().StringVar(&codeVersion, "code-version", "", "MC/DC version label (default: installed mcdc version)")
	rootCmd.PersistentFlags().StringVar(&pythonBin, "python", "python", "Python interpreter")
}
