package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"patternscope/internal/analyzer"
	"patternscope/internal/dataset"
	"patternscope/internal/inference"
	"patternscope/internal/scanner"
	"patternscope/pkg/model"
)

func newProgressBar(total int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func outputJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func indicatorsCmd() *cobra.Command {
	var rng, interval string
	var tail int
	cmd := &cobra.Command{
		Use:   "indicators SYMBOL",
		Short: "Print the indicator table of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				report, err := a.service.Indicators(ctx, model.Query{Symbol: args[0], Range: rng, Interval: interval})
				if err != nil {
					return err
				}
				records := report.Records()
				if tail > 0 && len(records) > tail {
					records = records[len(records)-tail:]
				}
				if format == "json" {
					return outputJSON(records)
				}

				fmt.Printf("%s %s/%s: %d rows\n\n", report.Symbol, report.Range, report.Interval, len(report.Rows))
				table := tablewriter.NewTable(os.Stdout, tablewriter.WithHeader(report.Headers()))
				for _, r := range records {
					table.Append(r.Cells())
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rng, "range", "", "history range, e.g. 6mo, 1y, max")
	cmd.Flags().StringVar(&interval, "interval", "", "bar interval, e.g. 1d, 1wk")
	cmd.Flags().IntVar(&tail, "tail", 20, "show only the last N rows (0 for all)")
	return cmd
}

func labelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "label SYMBOL...",
		Short: "Label the latest window of each symbol with the heuristics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				var results []*analyzer.LabelResult
				for _, sym := range scanner.ParseSymbols(args...) {
					res, err := a.service.Label(ctx, sym)
					if err != nil {
						return fmt.Errorf("%s: %w", sym, err)
					}
					results = append(results, res)
				}
				if format == "json" {
					return outputJSON(results)
				}

				table := tablewriter.NewTable(os.Stdout,
					tablewriter.WithHeader([]string{"Symbol", "Label", "Class", "Double Bottom", "Wedge", "H&S", "Slope", "Entry", "Window"}),
				)
				for _, r := range results {
					table.Append([]string{
						r.Symbol,
						r.Label.String(),
						fmt.Sprintf("%d", r.Class),
						yesNo(r.DoubleBottom),
						yesNo(r.Wedge),
						yesNo(r.HeadAndShoulders),
						fmt.Sprintf("%+.4f", r.Slope),
						fmt.Sprintf("%.2f", r.EntryPoint),
						windowSpan(r.StartDate, r.EndDate),
					})
				}
				table.Render()
				return nil
			})
		},
	}
}

func detectCmd() *cobra.Command {
	var modelName string
	cmd := &cobra.Command{
		Use:   "detect SYMBOL...",
		Short: "Run a detection model on the latest window of each symbol",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				var results []*analyzer.Detection
				for _, sym := range scanner.ParseSymbols(args...) {
					d, err := a.service.Detect(ctx, sym, modelName)
					if err != nil {
						return fmt.Errorf("%s: %w", sym, err)
					}
					results = append(results, d)
				}
				if format == "json" {
					return outputJSON(results)
				}

				table := tablewriter.NewTable(os.Stdout,
					tablewriter.WithHeader([]string{"Symbol", "Model", "Pattern", "Confidence", "Entry", "Window"}),
				)
				for _, d := range results {
					table.Append([]string{
						d.Symbol,
						d.Model,
						d.Pattern,
						fmt.Sprintf("%.0f%%", d.Confidence*100),
						fmt.Sprintf("%.2f", d.EntryPoint),
						windowSpan(d.StartDate, d.EndDate),
					})
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&modelName, "model", inference.DefaultModel, "model name (see serve /models)")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var rng, interval string
	cmd := &cobra.Command{
		Use:   "analyze SYMBOL",
		Short: "Show the moving-average trend and MACD/RSI signals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				trend, err := a.service.Trend(ctx, args[0])
				if err != nil {
					return err
				}
				signals, err := a.service.Signals(ctx, model.Query{Symbol: args[0], Range: rng, Interval: interval})
				if err != nil {
					return err
				}
				if format == "json" {
					return outputJSON(map[string]any{"trend": trend, "signals": signals})
				}

				fmt.Printf("[%s] %s\n", trend.Ticker, trend.Pattern)
				fmt.Printf("  Close: %.2f | MA10: %.2f | >> %s\n\n", trend.LastClose, trend.MovingAvg10, trend.Signal)

				if len(signals.Signals) == 0 {
					fmt.Println("No MACD or RSI signals in range.")
					return nil
				}
				table := tablewriter.NewTable(os.Stdout,
					tablewriter.WithHeader([]string{"Date", "Signal", "Price", "Source"}),
				)
				for _, s := range signals.Signals {
					table.Append([]string{
						s.Time.Format(time.DateOnly),
						string(s.Type),
						fmt.Sprintf("%.2f", s.Price),
						s.Source,
					})
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rng, "range", "", "history range for signals")
	cmd.Flags().StringVar(&interval, "interval", "", "bar interval for signals")
	return cmd
}

func scanCmd() *cobra.Command {
	var universe, modelName string
	var workers int
	cmd := &cobra.Command{
		Use:   "scan [SYMBOL...]",
		Short: "Label many symbols in parallel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				symbols := scanner.ParseSymbols(args...)
				if len(symbols) == 0 {
					var err error
					if symbols, err = scanner.GetUniverse(scanner.Universe(universe)); err != nil {
						return err
					}
				}
				if workers <= 0 {
					workers = a.cfg.Scanner.Workers
				}
				if modelName == "" {
					modelName = a.cfg.Scanner.Model
				}

				s := scanner.NewScanner(a.service, workers, a.cfg.Scanner.Timeout)
				s.SetModel(modelName)
				s.SetMetrics(a.metrics)

				fmt.Printf("Scanning %d symbols for chart patterns...\n\n", len(symbols))
				bar := newProgressBar(len(symbols), "Scanning")
				s.SetProgressCallback(func(scanned, total int) {
					bar.Set(scanned)
				})

				summary, err := s.Scan(ctx, symbols)
				bar.Finish()
				fmt.Println()
				if err != nil && summary == nil {
					return fmt.Errorf("scanning: %w", err)
				}
				if err != nil {
					fmt.Println("Scan interrupted, showing partial results")
				}

				if format == "json" {
					return outputJSON(summary)
				}
				return outputScanTable(summary)
			})
		},
	}
	cmd.Flags().StringVar(&universe, "universe", string(scanner.UniverseDataset), "symbol universe: dataset, mega, test")
	cmd.Flags().StringVar(&modelName, "model", "", "also run this detection model")
	cmd.Flags().IntVar(&workers, "workers", 0, "number of parallel workers (overrides config)")
	return cmd
}

func outputScanTable(summary *scanner.Summary) error {
	matches := summary.Matches()
	if len(matches) == 0 {
		fmt.Println("No patterns found.")
		fmt.Printf("Scanned %d symbols in %s (%d failed)\n", summary.TotalScanned, summary.ScanTime.Round(time.Second), summary.FailedCount)
		return nil
	}

	fmt.Printf("Found %d symbols with a pattern:\n\n", len(matches))

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Symbol", "Label", "Entry", "Detection", "Confidence", "Window"}),
	)
	for _, r := range matches {
		detected, conf := "-", "-"
		if r.Detection != nil {
			detected = r.Detection.Pattern
			conf = fmt.Sprintf("%.0f%%", r.Detection.Confidence*100)
		}
		table.Append([]string{
			r.Symbol,
			r.Label.Label.String(),
			fmt.Sprintf("%.2f", r.Label.EntryPoint),
			detected,
			conf,
			windowSpan(r.Label.StartDate, r.Label.EndDate),
		})
	}
	table.Render()

	if verbose && summary.FailedCount > 0 {
		fmt.Println("\n--- Failures ---")
		for _, r := range summary.Results {
			if r.Error != "" {
				fmt.Printf("  %s: %s\n", r.Symbol, r.Error)
			}
		}
	}

	fmt.Printf("\nScanned %d symbols in %s (%d failed)\n", summary.TotalScanned, summary.ScanTime.Round(time.Second), summary.FailedCount)
	return nil
}

func datasetCmd() *cobra.Command {
	var opts dataset.Options
	var sinkFormat, output, schedule string
	cmd := &cobra.Command{
		Use:   "dataset [SYMBOL...]",
		Short: "Generate a labelled window dataset from price history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				dc := a.cfg.Dataset
				symbols := scanner.ParseSymbols(args...)
				if len(symbols) == 0 {
					symbols = dc.Symbols
				}
				if opts.Range == "" {
					opts.Range = dc.Range
				}
				if opts.Interval == "" {
					opts.Interval = dc.Interval
				}
				if opts.Window == 0 {
					opts.Window = dc.Window
				}
				if opts.Stride == 0 {
					opts.Stride = dc.Stride
				}
				if sinkFormat == "" {
					sinkFormat = dc.Format
				}
				if output == "" {
					output = dc.Output
				}
				if schedule == "" {
					schedule = dc.Schedule
				}

				sink, err := dataset.OpenSink(sinkFormat, output)
				if err != nil {
					return err
				}
				defer sink.Close()

				gen := dataset.NewGenerator(a.provider, a.engine, a.labeler, sink, opts)
				gen.SetMetrics(a.metrics)

				if schedule != "" {
					sched := dataset.NewScheduler(ctx, gen, symbols)
					if err := sched.Register(schedule); err != nil {
						return err
					}
					fmt.Printf("Generating %s on schedule %q, Ctrl+C to stop\n", output, schedule)
					sched.Start()
					<-ctx.Done()
					sched.Stop()

					last := sched.Last()
					if last == nil {
						fmt.Println("No generation completed")
						return nil
					}
					if err := outputDatasetSummary(last, output); err != nil {
						return err
					}
					return outputStoredCounts(sink, output)
				}

				bar := newProgressBar(len(symbols), "Fetching")
				gen.SetProgressCallback(func(symbol string, done, total int) {
					bar.Describe(symbol)
					bar.Set(done)
				})

				summary, err := gen.Run(ctx, symbols)
				bar.Finish()
				fmt.Println()
				if err != nil {
					return err
				}
				if format == "json" {
					return outputJSON(summary)
				}
				if err := outputDatasetSummary(summary, output); err != nil {
					return err
				}
				return outputStoredCounts(sink, output)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Range, "range", "", "history range per symbol (default from config)")
	cmd.Flags().StringVar(&opts.Interval, "interval", "", "bar interval (default from config)")
	cmd.Flags().IntVar(&opts.Window, "window", 0, "window length in bars")
	cmd.Flags().IntVar(&opts.Stride, "stride", 0, "bars between window ends")
	cmd.Flags().StringVar(&sinkFormat, "sink", "", "dataset format: sqlite, csv, jsonl")
	cmd.Flags().StringVar(&output, "output", "", "dataset file")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression with seconds; runs until interrupted")
	return cmd
}

func outputDatasetSummary(summary *dataset.Summary, output string) error {
	fmt.Printf("Wrote %d samples from %d symbols to %s in %s\n\n",
		summary.Samples, summary.Symbols, output, summary.Duration.Round(time.Millisecond))
	printCounts(summary.Counts)

	if len(summary.Failed) > 0 {
		fmt.Println("\n--- Skipped ---")
		syms := make([]string, 0, len(summary.Failed))
		for sym := range summary.Failed {
			syms = append(syms, sym)
		}
		sort.Strings(syms)
		for _, sym := range syms {
			fmt.Printf("  %s: %s\n", sym, summary.Failed[sym])
		}
	}
	return nil
}

// outputStoredCounts prints the label totals of sinks that accumulate runs
func outputStoredCounts(sink dataset.Sink, output string) error {
	c, ok := sink.(dataset.Counter)
	if !ok {
		return nil
	}
	// the interrupted command context would fail the query
	counts, err := c.Counts(context.Background())
	if err != nil {
		return fmt.Errorf("counting %s: %w", output, err)
	}
	fmt.Printf("\nTotal in %s:\n", output)
	printCounts(counts)
	return nil
}

func synthCmd() *cobra.Command {
	var n int
	var seed uint64
	var sinkFormat, output string
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate synthetic pattern windows for model training",
		RunE: func(cmd *cobra.Command, args []string) error {
			if n < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}
			sink, err := dataset.OpenSink(sinkFormat, output)
			if err != nil {
				return err
			}
			defer sink.Close()

			rng := rand.New(rand.NewPCG(seed, seed>>1))
			samples := dataset.Synthesize(rng, n)
			if err := sink.Write(context.Background(), samples); err != nil {
				return err
			}

			counts := dataset.Counts(samples)
			if format == "json" {
				return outputJSON(map[string]any{"samples": len(samples), "seed": seed, "counts": counts})
			}
			fmt.Printf("Wrote %d synthetic samples to %s (seed %d)\n\n", len(samples), output, seed)
			printCounts(counts)
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "count", 2000, "number of windows")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (0 picks one)")
	cmd.Flags().StringVar(&sinkFormat, "sink", "jsonl", "dataset format: sqlite, csv, jsonl")
	cmd.Flags().StringVar(&output, "output", "synthetic.jsonl", "dataset file")
	return cmd
}

func printCounts(counts map[string]int) {
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	table := tablewriter.NewTable(os.Stdout, tablewriter.WithHeader([]string{"Label", "Samples"}))
	for _, l := range labels {
		table.Append([]string{l, fmt.Sprintf("%d", counts[l])})
	}
	table.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func windowSpan(start, end time.Time) string {
	return strings.Join([]string{start.Format(time.DateOnly), end.Format(time.DateOnly)}, " .. ")
}
