// Command watchkit watches one or more filesystem paths and prints
// normalized change events to standard output until it receives a
// termination signal. It is a thin demonstration of pkg/watch and
// pkg/config.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	if err := rootCommand.Execute(); err != nil {
		fatal(err)
	}
}

var rootCommand = &cobra.Command{
	Use:          "watchkit [path...]",
	Short:        "Watch filesystem paths and print normalized change events",
	RunE:         watchMain,
	SilenceUsage: true,
}

var rootConfiguration struct {
	// configPath is the path to an optional YAML configuration file, loaded
	// via pkg/config.
	configPath string
	// ignore lists additional glob patterns supplied on the command line, on
	// top of any patterns loaded from configPath.
	ignore []string
	// latency is the coalescing window hint passed to CreateWatcher.
	latency string
	// maxWatchDescriptors bounds Linux inotify watch descriptor usage.
	maxWatchDescriptors int
	// logLevel selects internal diagnostic verbosity.
	logLevel string
	// noColor disables colorized output even when standard output is a
	// terminal.
	noColor bool
}

// registerFlags installs watchkit's flags onto flags.
func registerFlags(flags *pflag.FlagSet) {
	flags.SortFlags = false

	flags.StringVarP(&rootConfiguration.configPath, "config", "c", "", "Load watch roots and options from a YAML configuration file")
	flags.StringSliceVar(&rootConfiguration.ignore, "ignore", nil, "Glob pattern to exclude from output (repeatable)")
	flags.StringVar(&rootConfiguration.latency, "latency", "10ms", "Coalescing window hint for platforms that support one")
	flags.IntVar(&rootConfiguration.maxWatchDescriptors, "max-watch-descriptors", 0, "Cap on simultaneously registered watches (Linux only, 0 = unlimited)")
	flags.StringVar(&rootConfiguration.logLevel, "log-level", "warn", "Internal diagnostic log level: disabled, error, warn, info, debug")
	flags.BoolVar(&rootConfiguration.noColor, "no-color", false, "Disable colorized output")
	flags.BoolP("help", "h", false, "Show help information")
}

func init() {
	registerFlags(rootCommand.Flags())
}

// fatal prints an error message to standard error and terminates the
// process with a non-zero exit code.
func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
