package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/objectrekognition/rekognition-server/pkg/server/store"
	gormstore "github.com/objectrekognition/rekognition-server/pkg/server/store/gorm"
)

// resultsCmd represents the results command
var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect stored analysis results",
	Long:  `Inspect the analysis results stored in the database.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'results' requires a subcommand (list, show)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(1)
	},
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored results, newest first",
	Long: `List stored results, newest first.

Example:
  rekogctl results list
  rekogctl results list --limit 10 --offset 20`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		results, err := withResultsStore(func(s store.ResultsStore) ([]store.Result, error) {
			return s.ListResults(context.Background(), limit, offset)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list results: %v\n", err)
			os.Exit(1)
		}
		printResults(os.Stdout, results)
	},
}

var resultsShowCmd = &cobra.Command{
	Use:   "show <digest>",
	Short: "Show the labels stored for an image digest",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		results, err := withResultsStore(func(s store.ResultsStore) ([]store.Result, error) {
			result, err := s.FetchResult(context.Background(), args[0])
			if err != nil {
				return nil, err
			}
			return []store.Result{*result}, nil
		})
		if errors.Is(err, store.ErrResultNotFound) {
			fmt.Fprintf(os.Stderr, "No result stored for %s\n", args[0])
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to fetch result: %v\n", err)
			os.Exit(1)
		}

		if err := printResult(os.Stdout, results[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode result: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsShowCmd)

	resultsListCmd.Flags().IntP("limit", "l", 50, "Maximum number of results")
	resultsListCmd.Flags().Int("offset", 0, "Number of results to skip")
}

func withResultsStore(fn func(store.ResultsStore) ([]store.Result, error)) ([]store.Result, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	database, err := connectDB(cfg)
	if err != nil {
		return nil, err
	}
	return fn(gormstore.NewResultsStore(database))
}

func printResults(w io.Writer, results []store.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Digest", "Filename", "Labels", "Created"})
	for _, r := range results {
		t.AppendRow(table.Row{r.Digest, r.Filename, len(r.Labels), r.CreatedAt.Format(time.RFC3339)})
	}
	t.Render()
}

// printResult writes one result as indented JSON, in the same shape the
// API uses for labels.
func printResult(w io.Writer, result store.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
