package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/objectrekognition/rekognition-server/pkg/analysis"
	"github.com/objectrekognition/rekognition-server/pkg/metrics"
)

// settleDelay is how long a created file must stay unmodified before it is
// analyzed.
const settleDelay = 500 * time.Millisecond

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [files...]",
	Short: "Analyze images without going through the HTTP API",
	Long: `Analyze images with the configured detector and store the results.

Files already analyzed are answered from the database. With --watch, images
created in the directory are analyzed as they appear until interrupted.

Example:
  rekogctl analyze photos/*.jpg
  rekogctl analyze --watch /var/spool/uploads`,
	Run: func(cmd *cobra.Command, args []string) {
		watchDir, _ := cmd.Flags().GetString("watch")
		if len(args) == 0 && watchDir == "" {
			fmt.Fprintln(os.Stderr, "error: no files given and --watch not set")
			_ = cmd.Help()
			os.Exit(1)
		}

		if err := runAnalyze(args, watchDir); err != nil {
			fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringP("watch", "w", "", "Directory to watch for new images")
}

func runAnalyze(files []string, watchDir string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	database, err := connectDB(cfg)
	if err != nil {
		return err
	}
	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	detector, err := newDetector(cfg, log, m)
	if err != nil {
		return err
	}
	workflow := newWorkflow(detector, newResultsStore(database, cfg, m), cfg, log, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(files) > 0 {
		uploads, err := readUploadFiles(files)
		if err != nil {
			return err
		}
		if err := printFileResults(os.Stdout, workflow.Process(ctx, uploads)); err != nil {
			return err
		}
	}

	if watchDir == "" {
		return nil
	}
	return watchImages(ctx, watchDir, workflow, log)
}

func readUploadFiles(paths []string) ([]analysis.Upload, error) {
	uploads := make([]analysis.Upload, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		uploads = append(uploads, analysis.Upload{Filename: filepath.Base(path), Data: data})
	}
	return uploads, nil
}

func printFileResults(w io.Writer, results []analysis.FileResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func isImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// watchImages analyzes images created or written in dir. Events for the
// same file are debounced so partially written files are not analyzed.
func watchImages(ctx context.Context, dir string, workflow *analysis.Workflow, log logrus.FieldLogger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	log.WithField("dir", dir).Info("watching for new images")

	ready := make(chan string)
	timers := map[string]*time.Timer{}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isImage(event.Name) {
				continue
			}

			name := event.Name
			if t, ok := timers[name]; ok {
				t.Reset(settleDelay)
				continue
			}
			timers[name] = time.AfterFunc(settleDelay, func() {
				select {
				case ready <- name:
				case <-ctx.Done():
				}
			})

		case name := <-ready:
			delete(timers, name)
			analyzeWatchedFile(ctx, name, workflow, log)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watcher error")

		case <-ctx.Done():
			for _, t := range timers {
				t.Stop()
			}
			log.Info("shutting down")
			return nil
		}
	}
}

func analyzeWatchedFile(ctx context.Context, path string, workflow *analysis.Workflow, log logrus.FieldLogger) {
	uploads, err := readUploadFiles([]string{path})
	if err != nil {
		log.WithError(err).Warn("skipping image")
		return
	}

	for _, res := range workflow.Process(ctx, uploads) {
		entry := log.WithFields(logrus.Fields{
			"filename": res.Filename,
			"status":   res.Status,
			"labels":   len(res.Labels),
		})
		if res.Error != "" {
			entry.WithField("error", res.Error).Warn("image analysis failed")
			continue
		}
		entry.Info("image analyzed")
	}
}
