// Command depthreport runs a synthetic depth-supervised training session and
// writes its artefacts: per-step loss metrics into a SQLite store, an HTML
// loss-curve report, and a side-by-side depth colormap PNG from a final
// evaluation pass.
//
// It exists to exercise and demonstrate the supervision stack end to end
// without a full rendering pipeline; the scene and base model are synthetic.
package main

import (
	"flag"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/radiantlabs/depthsup/internal/depthsup"
	"github.com/radiantlabs/depthsup/internal/metricstore"
	"github.com/radiantlabs/depthsup/internal/monitoring"
	"github.com/radiantlabs/depthsup/internal/report"
	"github.com/radiantlabs/depthsup/internal/synthetic"
)

func main() {
	configPath := flag.String("config", "", "Optional JSON depth supervision config")
	dbPath := flag.String("db", "depthreport.db", "SQLite metric store path")
	outDir := flag.String("out", "depthreport-out", "Output directory for report artefacts")
	steps := flag.Int("steps", 500, "Training steps to simulate")
	recordEvery := flag.Int("record-every", 10, "Record metrics every N steps")
	seed := flag.Int64("seed", 42, "Synthetic scene seed")
	verbose := flag.Bool("v", false, "Verbose per-step logging")
	flag.Parse()

	monitoring.Verbose = *verbose

	cfg := &depthsup.Config{}
	if *configPath != "" {
		var err error
		cfg, err = depthsup.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}

	if err := run(cfg, *dbPath, *outDir, *steps, *recordEvery, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "depthreport: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *depthsup.Config, dbPath, outDir string, steps, recordEvery int, seed int64) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	scene := synthetic.NewScene(seed)
	model, err := depthsup.New(cfg, scene.Model())
	if err != nil {
		return err
	}

	store, err := metricstore.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, err := store.CreateRun(string(cfg.GetDepthLossType()), cfg.GetDepthLossMult())
	if err != nil {
		return err
	}
	monitoring.Logf("recording run %s (%s) for %d steps", runID, cfg.GetDepthLossType(), steps)

	if recordEvery < 1 {
		recordEvery = 1
	}
	model.SetTraining(true)
	for step := 0; step < steps; step++ {
		model.SetStep(step)

		rays := scene.RayBundle()
		batch := scene.Batch(rays)
		outputs, err := model.Outputs(rays)
		if err != nil {
			return fmt.Errorf("step %d outputs: %w", step, err)
		}
		metrics, err := model.Metrics(outputs, batch)
		if err != nil {
			return fmt.Errorf("step %d metrics: %w", step, err)
		}
		lossDict, err := model.Losses(outputs, batch, metrics)
		if err != nil {
			return fmt.Errorf("step %d losses: %w", step, err)
		}

		if step%recordEvery == 0 {
			if err := store.RecordStep(runID, step, lossDict); err != nil {
				return fmt.Errorf("step %d record: %w", step, err)
			}
		}
		monitoring.Debugf("step %d losses %v", step, lossDict)
	}

	// Final evaluation pass: full-image metrics and the side-by-side colormap.
	model.SetTraining(false)
	groundTruth := scene.DepthImage(120, 160)
	views := scene.RenderedViews(groundTruth)
	evalMetrics, images, err := model.EvalImages(views, &depthsup.ImageBatch{DepthImage: groundTruth})
	if err != nil {
		return fmt.Errorf("evaluation: %w", err)
	}
	if err := store.RecordEval(runID, evalMetrics); err != nil {
		return err
	}
	for name, value := range evalMetrics {
		monitoring.Logf("eval %s = %g", name, value)
	}

	depthImage, ok := images["depth"]
	if !ok {
		return fmt.Errorf("evaluation produced no depth image")
	}
	pngPath := filepath.Join(outDir, "depth.png")
	f, err := os.Create(pngPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", pngPath, err)
	}
	if err := png.Encode(f, depthImage); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", pngPath, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	series := map[string][]metricstore.StepValue{}
	names, err := store.StepMetricNames(runID)
	if err != nil {
		return err
	}
	for _, name := range names {
		sv, err := store.StepSeries(runID, name)
		if err != nil {
			return err
		}
		series[name] = sv
	}
	htmlPath := filepath.Join(outDir, "losses.html")
	hf, err := os.Create(htmlPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", htmlPath, err)
	}
	if err := report.WriteLossCurves(hf, "depth supervision losses "+runID, series); err != nil {
		hf.Close()
		return err
	}
	if err := hf.Close(); err != nil {
		return err
	}

	monitoring.Logf("wrote %s and %s", pngPath, htmlPath)
	return nil
}
