package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-research/pkg/app"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

var (
	query   string
	depth   int
	breadth int
	output  string
)

func main() {
	// Setup structured logging
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	// It's okay if .env doesn't exist, as long as env vars are set
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "deep-research",
		Short: "A terminal-based deep research agent",
		Long:  `deep-research explores a topic recursively: it plans search queries, extracts learnings from the results and follows up on open questions until the depth budget is spent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("query") {
				if err := prompt(bufio.NewReader(os.Stdin)); err != nil {
					return err
				}
			}
			query = strings.TrimSpace(query)
			if query == "" {
				return fmt.Errorf("query cannot be empty")
			}
			return runResearch(cmd.Context())
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVarP(&query, "query", "q", "", "The research question")
	rootCmd.Flags().IntVarP(&depth, "depth", "d", 2, "How many levels of follow-up research to run (1-5)")
	rootCmd.Flags().IntVarP(&breadth, "breadth", "b", 4, "How many search queries to run at the first level (1-5)")
	rootCmd.Flags().StringVarP(&output, "output", "o", ".", "Directory for report.md and sources.json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

// prompt asks for the values not given as flags. Empty answers keep the defaults.
func prompt(reader *bufio.Reader) error {
	fmt.Print("What would you like to research? ")
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return fmt.Errorf("read query: %w", err)
	}
	query = strings.TrimSpace(input)

	ask := func(label string, value *int) error {
		fmt.Printf("%s (default: %d): ", label, *value)
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			return nil
		}
		n, err := strconv.Atoi(input)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", label, err)
		}
		*value = n
		return nil
	}
	if err := ask("Research depth (1-5)", &depth); err != nil {
		return err
	}
	return ask("Research breadth (1-5)", &breadth)
}

func runResearch(ctx context.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	rs, err := app.NewResearch(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}

	slog.Info("Starting research", "query", query, "depth", depth, "breadth", breadth)

	result, err := rs.Engine.Run(ctx, query, depth, breadth, printProgress)
	if err != nil {
		// An aborted run still returns what it learned so far.
		slog.Error("Research did not finish", "error", err, "learnings", len(result.Learnings))
		if len(result.Learnings) == 0 {
			return err
		}
	}

	if err := os.MkdirAll(output, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := writeSources(filepath.Join(output, "sources.json"), result.Sources); err != nil {
		return err
	}

	slog.Info("Writing final report", "learnings", len(result.Learnings), "sources", len(result.Sources))
	report, err := rs.Reports.Write(context.WithoutCancel(ctx), query, result)
	if err != nil {
		return err
	}
	reportPath := filepath.Join(output, "report.md")
	if err := os.WriteFile(reportPath, []byte(report), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	fmt.Printf("\n%s\n\nReport written to %s\n", report, reportPath)
	return nil
}

func printProgress(p research.ProgressState) {
	fmt.Fprintf(os.Stderr, "[depth %d/%d, breadth %d/%d] %d/%d queries done  %s\n",
		p.CurrentDepth, p.TotalDepth,
		p.CurrentBreadth, p.TotalBreadth,
		p.CompletedQueries, p.TotalQueries,
		p.CurrentQuery)
}

func writeSources(path string, sources []string) error {
	if sources == nil {
		sources = []string{}
	}
	data, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sources: %w", err)
	}
	return nil
}
