package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"ctsharness"
	"ctsharness/internal/availability"
	"ctsharness/internal/bulk"
	"ctsharness/internal/capture"
	"ctsharness/internal/cli"
	"ctsharness/internal/collector"
	"ctsharness/internal/config"
	"ctsharness/internal/frame"
	"ctsharness/internal/logging"
	"ctsharness/internal/metrics"
	"ctsharness/internal/otel"
	"ctsharness/internal/simulate"
	"ctsharness/internal/version"

	"golang.org/x/sync/errgroup"
)

const bundledScenario = "config/scenarios/smoke.yaml"

var errMismatch = errors.New("frame mismatch")
var errLeak = errors.New("frames not released")

func runSelftest(cfg Config, out io.Writer, errOut io.Writer) error {
	overrides := map[string]any{}
	if cfg.LogLevel != "" {
		overrides["log.level"] = cfg.LogLevel
	}
	settings, err := config.Load(cfg.ConfigPath, overrides)
	if err != nil {
		return &cli.ExitError{Code: exitCodeUsage, Message: "load settings", Err: err}
	}
	scenario, err := loadScenario(cfg.ScenarioPath)
	if err != nil {
		return &cli.ExitError{Code: exitCodeUsage, Message: "load scenario", Err: err}
	}

	ctx := context.Background()
	if cfg.OTelLogPath != "" {
		shutdown, err := setupOTel(ctx, cfg.OTelLogPath)
		if err != nil {
			return &cli.ExitError{Code: exitCodeUsage, Message: "set up otel logs", Err: err}
		}
		defer shutdown()
	}

	buffer := logging.NewLogBuffer(int(settings.Log.BufferSize))
	logger := logging.NewLoggerWithOutput(buffer, settings.Log.Level, errOut).Component("selftest")
	registry := &metrics.Registry{}

	h, err := newHarness(settings, scenario, registry, logger, cfg.DumpDir)
	if err != nil {
		return &cli.ExitError{Code: exitCodeUsage, Message: "build cameras", Err: err}
	}
	defer h.close()

	if err := h.run(ctx); err != nil {
		return classify(err)
	}
	if cfg.BulkUnits > 0 {
		if err := runBulk(ctx, settings, h.runs[0].camera.Layout(), cfg.BulkUnits, registry, logger); err != nil {
			return classify(err)
		}
	}

	if cfg.Metrics {
		if err := registry.WritePrometheus(out); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "selftest %s passed: %d camera(s), %d frame(s)\n", scenario.Name, len(scenario.Cameras), scenario.TotalFrames())
	return nil
}

func setupOTel(ctx context.Context, path string) (func(), error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	options := otel.SDKOptionsFromEnv()
	options.ServiceVersion = version.Version
	options.Output = file
	shutdownLogs, err := otel.SetupLogs(ctx, options)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return func() {
		_ = shutdownLogs(context.Background())
		_ = file.Close()
	}, nil
}

func loadScenario(path string) (simulate.Scenario, error) {
	if path != "" {
		return simulate.LoadScenario(path)
	}
	payload, err := fs.ReadFile(ctsharness.EmbeddedConfigFS, bundledScenario)
	if err != nil {
		return simulate.Scenario{}, err
	}
	return simulate.ParseScenario(payload)
}

func classify(err error) error {
	var exitErr *cli.ExitError
	switch {
	case errors.As(err, &exitErr):
		return err
	case errors.Is(err, collector.ErrTimeout):
		return &cli.ExitError{Code: exitCodeTimeout, Err: err}
	case errors.Is(err, errMismatch), errors.Is(err, errLeak), errors.Is(err, frame.ErrIncompatibleBuffers):
		return &cli.ExitError{Code: exitCodeMismatch, Err: err}
	default:
		return &cli.ExitError{Code: exitCodeFailure, Err: err}
	}
}

type cameraRun struct {
	spec     simulate.CameraSpec
	camera   *simulate.Camera
	callback *capture.Callback
	images   *frame.Listener
	requests []capture.Request
	queue    string
}

type harness struct {
	settings config.Settings
	registry *metrics.Registry
	logger   *logging.Logger
	dumpDir  string
	tracker  *availability.Tracker[string]
	runs     []*cameraRun
}

func newHarness(settings config.Settings, scenario simulate.Scenario, registry *metrics.Registry, logger *logging.Logger, dumpDir string) (*harness, error) {
	h := &harness{
		settings: settings,
		registry: registry,
		logger:   logger,
		dumpDir:  dumpDir,
		tracker: availability.NewTracker[string](availability.Options{
			Name:        "cameras",
			QuietPeriod: settings.Timeouts.Availability(),
			Registry:    registry,
			Logger:      logger,
		}),
	}
	for _, spec := range scenario.Cameras {
		run := &cameraRun{spec: spec, queue: "camera" + spec.ID + ".images"}
		run.callback = capture.NewCallback(capture.Options{
			Name:          "camera" + spec.ID,
			ResultTimeout: settings.Timeouts.CaptureResult(),
			Registry:      registry,
			Logger:        logger,
		})
		run.images = frame.NewListener(int(settings.Collector.MaxReaderImages), frame.ListenerOptions{
			Name:     run.queue,
			Registry: registry,
			Logger:   logger,
		})
		camera, err := simulate.NewCamera(spec, simulate.Sinks{
			Callback:     run.callback,
			Images:       run.images,
			Availability: h.tracker,
		}, logger)
		if err != nil {
			h.close()
			return nil, err
		}
		run.camera = camera
		run.requests = camera.Requests()
		h.runs = append(h.runs, run)
	}
	return h, nil
}

func (h *harness) ids() []string {
	ids := make([]string, len(h.runs))
	for index, run := range h.runs {
		ids[index] = run.spec.ID
	}
	return ids
}

func (h *harness) run(ctx context.Context) error {
	for _, run := range h.runs {
		if err := run.camera.Open(); err != nil {
			return err
		}
	}
	if err := h.tracker.AwaitAvailable(h.ids(), h.settings.Timeouts.CaptureResult()); err != nil {
		return fmt.Errorf("cameras available: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, run := range h.runs {
		group.Go(func() error {
			_, err := run.camera.Capture(groupCtx, run.requests)
			return err
		})
		group.Go(func() error {
			return h.collectResults(run)
		})
		group.Go(func() error {
			return h.verifyImages(run)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for _, run := range h.runs {
		if err := run.camera.Disconnect(); err != nil {
			return err
		}
	}
	if err := h.tracker.AwaitUnavailable(h.ids(), h.settings.Timeouts.CaptureResult()); err != nil {
		return fmt.Errorf("cameras unavailable: %w", err)
	}

	for _, run := range h.runs {
		run.images.Drain()
		run.callback.Drain()
		if outstanding := run.camera.Outstanding(); outstanding != 0 {
			return fmt.Errorf("%w: camera %s holds %d", errLeak, run.spec.ID, outstanding)
		}
	}
	return nil
}

func (h *harness) collectResults(run *cameraRun) error {
	budget := h.settings.Timeouts.CaptureResult()
	if run.spec.FPS > 0 {
		budget += time.Duration(float64(run.spec.Frames) / run.spec.FPS * float64(time.Second))
	}
	results, err := run.callback.ResultsForRequests(run.requests, budget)
	if err != nil {
		return fmt.Errorf("camera %s: %w", run.spec.ID, err)
	}
	for index, result := range results {
		if result.Request.ID != run.requests[index].ID {
			return fmt.Errorf("%w: camera %s result %d belongs to %s", errMismatch, run.spec.ID, index, result.Request.Tag)
		}
	}
	last, err := run.callback.SequenceLastFrameNumber(1, budget)
	if err != nil {
		return fmt.Errorf("camera %s: %w", run.spec.ID, err)
	}
	h.logger.Info("results collected", map[string]string{
		"camera":     run.spec.ID,
		"results":    strconv.Itoa(len(results)),
		"last_frame": strconv.FormatInt(last, 10),
	})
	return nil
}

// verifyImages copies every delivered frame, into a differently padded
// buffer for YUV, and checks the copy. Frames evicted by the reader's drop-oldest
// policy count as delivered.
func (h *harness) verifyImages(run *cameraRun) error {
	received := 0
	for received+h.dropped(run) < run.spec.Frames {
		handle, err := run.images.Image(h.settings.Timeouts.CaptureImage())
		if err != nil {
			if errors.Is(err, collector.ErrTimeout) && received+h.dropped(run) >= run.spec.Frames {
				break
			}
			return fmt.Errorf("camera %s image %d: %w", run.spec.ID, received, err)
		}
		err = h.verifyFrame(run, handle.Image())
		handle.Release()
		if err != nil {
			return err
		}
		received++
	}
	h.logger.Info("frames verified", map[string]string{
		"camera":   run.spec.ID,
		"verified": strconv.Itoa(received),
		"dropped":  strconv.Itoa(h.dropped(run)),
	})
	return nil
}

func (h *harness) dropped(run *cameraRun) int {
	return int(h.registry.Queue(run.queue).Dropped)
}

func (h *harness) verifyFrame(run *cameraRun, src *frame.Image) error {
	layout := run.camera.Layout()
	if layout.Format == frame.FormatYUV420 {
		layout.RowPadding += 3
	}
	dst := simulate.Blank(layout)
	if err := frame.Copy(src, dst); err != nil {
		return fmt.Errorf("camera %s: %w", run.spec.ID, err)
	}
	reason, err := frame.Diff(src, dst)
	if err != nil {
		return fmt.Errorf("camera %s: %w", run.spec.ID, err)
	}
	if reason == "" {
		return nil
	}
	h.logger.Debug("frame mismatch", map[string]string{"camera": run.spec.ID, "reason": reason})
	h.dump(run.spec.ID, src, dst)
	return fmt.Errorf("%w: camera %s frame at %d: %s", errMismatch, run.spec.ID, src.Timestamp, reason)
}

func (h *harness) dump(cameraID string, images ...*frame.Image) {
	if h.dumpDir == "" {
		return
	}
	if err := os.MkdirAll(h.dumpDir, 0o755); err != nil {
		h.logger.Warn("dump directory unavailable", map[string]string{"error": err.Error()})
		return
	}
	for index, image := range images {
		name := fmt.Sprintf("camera%s_%d_%d.zst", cameraID, image.Timestamp, index)
		if err := frame.Dump(filepath.Join(h.dumpDir, name), image); err != nil {
			h.logger.Warn("frame dump failed", map[string]string{"error": err.Error()})
		}
	}
}

func (h *harness) close() {
	h.tracker.Close()
	for _, run := range h.runs {
		run.images.Close()
		run.callback.Close()
	}
}

// runBulk imports units synthetic frames under the configured time box and
// then deletes them again, counting down.
func runBulk(ctx context.Context, settings config.Settings, layout simulate.Layout, units int, registry *metrics.Registry, logger *logging.Logger) error {
	var store sync.Map
	job := bulk.Job{
		Name:          "import",
		Total:         units,
		Workers:       int(settings.Bulk.Workers),
		MaxDuration:   settings.Bulk.MaxDuration(),
		ProgressEvery: int(settings.Bulk.ProgressEvery),
		Registry:      registry,
		Logger:        logger,
		Do: func(ctx context.Context, index int) error {
			dst := simulate.Blank(layout)
			if err := frame.Copy(simulate.NewImage(layout, byte(index)), dst); err != nil {
				return err
			}
			store.Store(index, dst)
			return nil
		},
	}
	imported, err := bulk.RunTimeBoxed(ctx, job)
	if err != nil {
		return err
	}
	if want := min(units, int(settings.Bulk.MinUnitCount)); imported.Completed < want {
		return &cli.ExitError{
			Code:    exitCodeTimeout,
			Message: fmt.Sprintf("bulk import finished %d of %d units in %s", imported.Completed, want, imported.Elapsed),
			Err:     collector.ErrTimeout,
		}
	}

	job.Name = "delete"
	job.Total = imported.Completed
	job.Do = func(ctx context.Context, index int) error {
		if _, loaded := store.LoadAndDelete(index); !loaded {
			return fmt.Errorf("unit %d was never imported", index)
		}
		return nil
	}
	deleted, err := bulk.RunCountdown(ctx, job)
	if err != nil {
		return err
	}
	if deleted.Completed != imported.Completed {
		return fmt.Errorf("deleted %d of %d imported units", deleted.Completed, imported.Completed)
	}
	return nil
}
