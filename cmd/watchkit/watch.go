package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/watchkit/watchkit/pkg/config"
	"github.com/watchkit/watchkit/pkg/logging"
	"github.com/watchkit/watchkit/pkg/watch"
)

// terminationSignals are the signals watchkit treats as a request to stop
// watching and exit cleanly.
var terminationSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// watchMain implements the root command's RunE: it resolves configuration
// from flags and an optional YAML file, creates a Watcher, and prints
// normalized events until a termination signal arrives.
func watchMain(command *cobra.Command, arguments []string) error {
	roots := arguments
	var globalIgnore []string
	rootIgnore := make(map[string][]string)
	latency, err := time.ParseDuration(rootConfiguration.latency)
	if err != nil {
		return errors.Wrap(err, "invalid latency")
	}
	maxWatchDescriptors := rootConfiguration.maxWatchDescriptors
	logLevelName := rootConfiguration.logLevel

	if rootConfiguration.configPath != "" {
		loaded, err := config.Load(rootConfiguration.configPath)
		if err != nil {
			return errors.Wrap(err, "unable to load configuration file")
		}
		for _, root := range loaded.Roots {
			roots = append(roots, root.Path)
		}
		globalIgnore = append(globalIgnore, loaded.GlobalIgnorePatterns()...)
		for root, patterns := range loaded.RootIgnorePatterns() {
			rootIgnore[root] = append(rootIgnore[root], patterns...)
		}
		if loaded.Latency > 0 {
			latency = loaded.Latency
		}
		if loaded.MaxWatchDescriptors > 0 {
			maxWatchDescriptors = loaded.MaxWatchDescriptors
		}
		if rootConfiguration.logLevel == "warn" {
			logLevelName = loaded.LogLevel.String()
		}
	}
	// Patterns passed via --ignore apply across every watch path given on the
	// command line, so they're global rather than scoped to any one root.
	globalIgnore = append(globalIgnore, rootConfiguration.ignore...)

	if len(roots) == 0 {
		return errors.New("no watch paths specified (pass paths as arguments or list roots in --config)")
	}

	logLevel, ok := logging.NameToLevel(logLevelName)
	if !ok {
		return errors.Errorf("invalid log level: %s", logLevelName)
	}
	logger := logging.NewLogger(logLevel)

	colorEnabled := !rootConfiguration.noColor && isatty.IsTerminal(os.Stdout.Fd())
	color.NoColor = !colorEnabled

	options := []watch.Option{watch.WithLogger(logger)}
	if len(globalIgnore) > 0 {
		filter, err := watch.CompileIgnorePatterns(globalIgnore)
		if err != nil {
			return errors.Wrap(err, "invalid ignore pattern")
		}
		if filter != nil {
			options = append(options, watch.WithFilter(filter))
		}
	}
	if len(rootIgnore) > 0 {
		filter, err := watch.CompileRootIgnorePatterns(rootIgnore)
		if err != nil {
			return errors.Wrap(err, "invalid per-root ignore pattern")
		}
		if filter != nil {
			options = append(options, watch.WithFilter(filter))
		}
	}
	if maxWatchDescriptors > 0 {
		options = append(options, watch.WithMaxWatchDescriptors(maxWatchDescriptors))
	}

	sink := newPrintingSink()
	watcher, err := watch.CreateWatcher(sink, latency, options...)
	if err != nil {
		return errors.Wrap(err, "unable to create watcher")
	}

	if err := watcher.StartWatching(roots); err != nil {
		watcher.Close(5 * time.Second)
		return errors.Wrap(err, "unable to start watching")
	}
	for _, root := range roots {
		fmt.Println("Watching", root)
	}

	signalTermination := make(chan os.Signal, 1)
	signal.Notify(signalTermination, terminationSignals...)
	<-signalTermination

	fmt.Println("Received termination signal, stopping...")
	terminated, err := watcher.Close(5 * time.Second)
	if err != nil {
		return err
	}
	if !terminated {
		return errors.New("watcher did not terminate within the grace period")
	}
	fmt.Printf("Delivered %s events across %s\n",
		humanize.Comma(int64(sink.count)), humanize.Time(sink.started))
	return nil
}

// printingSink is a watch.ChangeSink that prints each event, colorized by
// ChangeType when color output is enabled.
type printingSink struct {
	count   int
	started time.Time
}

func newPrintingSink() *printingSink {
	return &printingSink{started: time.Now()}
}

// PathChanged implements watch.ChangeSink.PathChanged.
func (s *printingSink) PathChanged(eventType watch.ChangeType, absolutePath string) {
	s.count++
	fmt.Printf("%s %s\n", colorizeChangeType(eventType), absolutePath)
}

// ReportError implements watch.ChangeSink.ReportError.
func (s *printingSink) ReportError(err error) {
	fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
}

// colorizeChangeType renders a ChangeType's name, colorized to make the
// event stream easier to scan visually.
func colorizeChangeType(eventType watch.ChangeType) string {
	name := eventType.String()
	switch eventType {
	case watch.ChangeCreated:
		return color.GreenString(name)
	case watch.ChangeRemoved:
		return color.RedString(name)
	case watch.ChangeModified:
		return color.CyanString(name)
	case watch.ChangeInvalidated, watch.ChangeOverflow:
		return color.YellowString(name)
	default:
		return name
	}
}
