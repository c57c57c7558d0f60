package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	sightanalyzer "github.com/menta2k/sight-analyzer"
	"github.com/menta2k/sight-analyzer/internal/results"
	"github.com/menta2k/sight-analyzer/internal/utils"
	"github.com/menta2k/sight-analyzer/pkg/types"
)

type batchOptions struct {
	Mode    string
	Workers int
	Gallery string
	Output  string
	Save    bool
}

// batchLine is one line of batch output
type batchLine struct {
	Path        string     `json:"path"`
	Mode        types.Mode `json:"mode"`
	Description string     `json:"description,omitempty"`
	Error       string     `json:"error,omitempty"`
	ResultID    string     `json:"resultId,omitempty"`
}

var batchOpts batchOptions

var batchCmd = &cobra.Command{
	Use:   "batch <directory>",
	Short: "Analyze every image in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd.Context(), args[0], batchOpts)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchOpts.Mode, "mode", string(types.ModeDescription), "analysis mode: labeling, detection, recognition, scene, description, deepfake")
	batchCmd.Flags().IntVarP(&batchOpts.Workers, "workers", "w", 2, "images analyzed in parallel")
	batchCmd.Flags().StringVarP(&batchOpts.Gallery, "gallery", "g", "", "directory of known faces for recognition")
	batchCmd.Flags().StringVarP(&batchOpts.Output, "output", "o", "", "write JSON lines to this file instead of stdout")
	batchCmd.Flags().BoolVar(&batchOpts.Save, "save", false, "save every description to the results store")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(ctx context.Context, dir string, opts batchOptions) error {
	mode, err := types.ParseMode(opts.Mode)
	if err != nil {
		return err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	files, err := utils.ListImageFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found in %s", dir)
	}
	sort.Strings(files)

	sa, err := newAnalyzer()
	if err != nil {
		return err
	}
	if opts.Gallery != "" {
		if _, err := loadGallery(sa, opts.Gallery); err != nil {
			return err
		}
	}

	var store results.Store
	if opts.Save {
		if store, err = openStore(ctx, cfg); err != nil {
			return err
		}
		defer store.Close()
	}

	out := os.Stdout
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Analyzing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	var mu sync.Mutex
	failed := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, file := range files {
		g.Go(func() error {
			line := analyzeFile(gctx, sa, store, mode, file)

			mu.Lock()
			defer mu.Unlock()
			if line.Error != "" {
				failed++
			}
			bar.Add(1)
			return enc.Encode(line)
		})
	}
	err = g.Wait()
	bar.Finish()
	fmt.Fprintf(os.Stderr, "\nAnalyzed %d images, %d failed.\n", len(files), failed)
	if err != nil {
		return err
	}
	return ctx.Err()
}

// analyzeFile never fails the batch; problems are reported on the line
func analyzeFile(ctx context.Context, sa *sightanalyzer.ImageAnalyzer, store results.Store, mode types.Mode, path string) batchLine {
	line := batchLine{Path: path, Mode: mode}

	img, err := sa.LoadImage(path)
	if err != nil {
		line.Error = err.Error()
		return line
	}

	report, err := sa.Orchestrator().Run(ctx, mode, img, sa.Gallery())
	if err != nil {
		logger.Warn("analysis failed", zap.String("path", path), zap.Error(err))
		line.Error = err.Error()
		return line
	}
	line.Description = report.Description

	if store != nil {
		id, err := store.Save(ctx, results.FromReport(report, path))
		if err != nil {
			logger.Error("failed to save result", zap.String("path", path), zap.Error(err))
		}
		line.ResultID = id
	}
	return line
}
