package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nxadm/tail"
	"github.com/spf13/cobra"

	"github.com/combatlog/combatlog/internal/parser"
	"github.com/combatlog/combatlog/internal/timeline"
	"github.com/combatlog/combatlog/pkg/combatlog"
)

var (
	manifestPath  string
	pluginTimeout time.Duration
	ntpServers    []string
	outputFormat  string
	follow        bool
)

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Run a combat log file through the pipeline and report statistics",
	Long: `process reads a combat log file one line at a time, runs each line
through the pipeline the same way Manager.ProcessLine does, and reports
per-stream statistics on completion.

Examples:
  # Process a log file, printing nothing but the final report
  combatlog process --format none combat_2026.txt

  # Echo each parsed event as JSON Lines while processing
  combatlog process combat_2026.txt | jq 'select(.event.action_name == "Damage")'

  # Follow a live log, loading extra plugins from a manifest
  combatlog process --follow --manifest plugins.yaml combat_2026.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&manifestPath, "manifest", "",
		"plugin manifest YAML (loads additional builtin/wasm plugins)")
	processCmd.Flags().DurationVar(&pluginTimeout, "plugin-timeout", 0,
		"per-call timeout applied to every loaded Wasm plugin (0 = plugin default)")
	processCmd.Flags().StringSliceVar(&ntpServers, "ntp", nil,
		"NTP servers to synchronize the clock against before processing")
	processCmd.Flags().StringVarP(&outputFormat, "format", "f", "jsonl",
		"per-event output format: jsonl, pretty, none")
	processCmd.Flags().BoolVar(&follow, "follow", false,
		"keep reading as the file grows, like tail -f")
}

func runProcess(cmd *cobra.Command, args []string) error {
	if !validFormats[outputFormat] {
		return fmt.Errorf("unknown format: %s", outputFormat)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger()

	mgr, cleanup, err := buildManager(ctx, manifestPath, pluginTimeout, ntpServers, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if ntpClock, ok := mgr.ClockSource().(*timeline.NTPClock); ok {
		if err := ntpClock.Synchronize(ctx); err != nil {
			logger.Warn("ntp synchronization failed, continuing with unsynchronized clock", "error", err)
		}
	}

	out := cmd.OutOrStdout()
	lines, errs, err := openLines(ctx, args[0], follow)
	if err != nil {
		return err
	}

	for {
		select {
		case raw, ok := <-lines:
			if !ok {
				return printReport(out, mgr)
			}
			ev, err := parser.Parse(raw)
			if err != nil {
				logger.Debug("dropping malformed line", "error", err)
				continue
			}
			mgr.ProcessEvent(&ev)
			if err := outputEvent(outputFormat, ev, out); err != nil {
				return fmt.Errorf("output error: %w", err)
			}

		case err, ok := <-errs:
			if !ok {
				continue
			}
			return err

		case <-ctx.Done():
			return printReport(out, mgr)
		}
	}
}

// openLines streams raw lines from path, either once through or
// continuously if follow is set. The returned channels are both closed
// when reading finishes (EOF, ctx cancellation, or a fatal error).
func openLines(ctx context.Context, path string, follow bool) (<-chan string, <-chan error, error) {
	lines := make(chan string, 256)
	errs := make(chan error, 1)

	if !follow {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		go func() {
			defer f.Close()
			defer close(lines)
			defer close(errs)
			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				select {
				case lines <- scanner.Text():
				case <-ctx.Done():
					return
				}
			}
			if err := scanner.Err(); err != nil && err != io.EOF {
				errs <- fmt.Errorf("reading log file: %w", err)
			}
		}()
		return lines, errs, nil
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("following log file: %w", err)
	}
	go func() {
		defer close(lines)
		defer close(errs)
		for {
			select {
			case line, ok := <-t.Lines:
				if !ok {
					return
				}
				if line.Err != nil {
					errs <- line.Err
					return
				}
				select {
				case lines <- line.Text:
				case <-ctx.Done():
					t.Stop()
					return
				}
			case <-ctx.Done():
				t.Stop()
				return
			}
		}
	}()
	return lines, errs, nil
}

// printReport writes the Time Reconstructor's per-stream statistics
// (§6 "reports per-stream statistics on completion").
func printReport(out io.Writer, mgr *combatlog.Manager) error {
	stats := mgr.Statistics()
	_, err := fmt.Fprintf(out,
		"lines_processed=%d area_events=%d midnight_rollovers=%d time_jumps=%d "+
			"late_arrival_total_ms=%d max_late_arrival_ms=%d\n",
		stats.LinesProcessed, stats.AreaEvents, stats.MidnightRollovers, stats.TimeJumps,
		stats.LateArrivalTotalMs, stats.MaxLateArrivalMs)
	return err
}
