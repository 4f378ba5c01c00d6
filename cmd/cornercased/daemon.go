package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/cornercase/internal/api"
	"github.com/banshee-data/cornercase/internal/capture"
	"github.com/banshee-data/cornercase/internal/config"
	"github.com/banshee-data/cornercase/internal/control"
	"github.com/banshee-data/cornercase/internal/db"
	"github.com/banshee-data/cornercase/internal/drive"
	"github.com/banshee-data/cornercase/internal/fsutil"
	"github.com/banshee-data/cornercase/internal/incident"
	"github.com/banshee-data/cornercase/internal/recorder"
	"github.com/banshee-data/cornercase/internal/telemetry"
	"github.com/banshee-data/cornercase/internal/timeutil"
	"github.com/banshee-data/cornercase/internal/wheel"
)

// feedDepth is how many frame pairs may wait between a producer and the
// buffer before new ones are dropped.
const feedDepth = 4

// firstSessionID numbers the first scene recording and case directory
// (scene_recording_1.log, cc_1).
const firstSessionID = 1

// daemon holds every component of one run.
type daemon struct {
	cfg     *config.RunConfig
	fs      fsutil.FileSystem
	runID   uuid.UUID
	started time.Time
	dev     bool

	primary  *wheel.Device
	override *wheel.Device

	buffer    *capture.Buffer
	feed      *capture.Feed
	producer  *capture.SyntheticProducer
	db        *db.DB
	lifecycle *incident.Lifecycle
	reviews   *api.ReviewQueue
	pedals    *telemetry.PedalTracker
	runner    *drive.Runner
	server    *http.Server
}

// newDaemon opens the devices and the database and wires the control loop.
// The returned daemon owns them until run returns.
func newDaemon(ctx context.Context, cfg *config.RunConfig, dev bool) (d *daemon, err error) {
	d = &daemon{
		cfg:     cfg,
		fs:      fsutil.OSFileSystem{},
		runID:   uuid.New(),
		started: time.Now(),
		dev:     dev,
	}
	defer func() {
		if err != nil {
			d.closeDevices()
			if d.db != nil {
				d.db.Close()
			}
		}
	}()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	root := cfg.GetOutputDir()
	if err := d.fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	interval := time.Second / time.Duration(cfg.GetFPS())

	axisMap, err := wheel.LoadAxisMap(cfg.GetWheelMap())
	if err != nil {
		return nil, err
	}
	if err := d.openDevices(ctx, axisMap, interval); err != nil {
		return nil, err
	}

	enc, err := capture.NewEncoder(cfg.GetFrameFormat())
	if err != nil {
		return nil, err
	}
	d.buffer, err = capture.NewBuffer(capture.Options{
		Capacity: cfg.Capacity(),
		Stride:   cfg.GetStride(),
		Root:     root,
		FS:       d.fs,
		Encoder:  enc,
	})
	if err != nil {
		return nil, err
	}
	d.feed = capture.NewFeed(d.buffer, feedDepth)
	if dev || cfg.GetSyntheticFrames() {
		d.producer = &capture.SyntheticProducer{Width: 320, Height: 240, FPS: cfg.GetFPS()}
	}

	d.db, err = db.NewDB(cfg.GetDBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	setup := incident.Setup{
		RunID:          d.runID,
		StartedAt:      d.started,
		PrimaryDriver:  cfg.GetPrimaryDriver(),
		OverrideDriver: cfg.GetOverrideDriver(),
		MapName:        cfg.GetMapName(),
		WeatherPreset:  cfg.GetWeatherPreset(),
		SensorName:     cfg.GetSensorName(),
		FPS:            cfg.GetFPS(),
		Stride:         cfg.GetStride(),
		SecondsBefore:  cfg.GetSecondsBeforeEvent(),
	}
	if d.override == nil {
		setup.OverrideDriver = ""
	}
	if _, err := incident.WriteSetup(d.fs, root, setup); err != nil {
		return nil, fmt.Errorf("write setup: %w", err)
	}
	if err := d.db.RecordRun(ctx, d.runID, d.started, setup); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}

	rec := recorder.NewIncidentRecorder(
		recorder.NewSceneLog(d.fs, timeutil.RealClock{}, recorder.DefaultChunkSize), d.fs, root)
	odometer := &control.Odometer{}
	d.reviews = api.NewReviewQueue()
	d.lifecycle, err = incident.NewLifecycle(incident.Options{
		Buffer:         d.buffer,
		Recorder:       rec,
		Reviewer:       d.reviews,
		Store:          incident.MultiStore{incident.NewCSVLog(d.fs, root), d.db},
		Odometer:       odometer,
		SensorName:     cfg.GetSensorName(),
		WeatherPreset:  cfg.GetWeatherPreset(),
		CancelPolicy:   cfg.GetCancelPolicy(),
		MaxPending:     cfg.GetMaxPendingTriggers(),
		FirstSessionID: firstSessionID,
	})
	if err != nil {
		return nil, err
	}

	d.pedals = telemetry.NewPedalTracker(d.db, d.runID, cfg.GetPedalFlushEvery())
	opts := drive.Options{
		Primary:   d.primary,
		Gearbox:   d.primary,
		Arbiter:   control.NewArbiter(cfg.GetHysteresisThreshold()),
		Vehicle:   drive.NewKinematicVehicle(interval),
		Lifecycle: d.lifecycle,
		Recorder:  rec,
		Pedals:    d.pedals,
		Odometer:  odometer,
		Interval:  interval,
		OnOutcome: d.reviews.Observe,
	}
	if d.override != nil {
		opts.Override = d.override
	}
	d.runner, err = drive.NewRunner(opts)
	if err != nil {
		return nil, err
	}

	srv, err := api.NewServer(api.Options{
		RunID:     d.runID,
		Lifecycle: d.lifecycle,
		Buffer:    d.buffer,
		Feed:      d.feed,
		Runner:    d.runner,
		Reviews:   d.reviews,
		Incidents: d.db,
		Pedals:    d.db,
	})
	if err != nil {
		return nil, err
	}
	mux := srv.ServeMux()
	if err := d.db.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	d.server = &http.Server{
		Addr:              cfg.GetListen(),
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return d, nil
}

// openDevices opens the configured wheels, or mock wheels reporting an idle
// position in dev mode. An empty override port runs single-driver.
func (d *daemon) openDevices(ctx context.Context, m wheel.AxisMap, interval time.Duration) error {
	if d.dev {
		d.primary = wheel.NewMockDevice(ctx, "primary", wheel.IdleReport, interval, m)
		d.override = wheel.NewMockDevice(ctx, "override", wheel.IdleReport, interval, m)
		return nil
	}

	opts := wheel.OptionsFromConfig(d.cfg.GetSerial())
	var err error
	d.primary, err = wheel.Open("primary", d.cfg.GetPrimaryPort(), opts, m, wheel.SerialOpener)
	if err != nil {
		return err
	}
	if port := d.cfg.GetOverridePort(); port != "" {
		d.override, err = wheel.Open("override", port, opts, m, wheel.SerialOpener)
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *daemon) closeDevices() {
	for _, dev := range []*wheel.Device{d.primary, d.override} {
		if dev == nil {
			continue
		}
		if err := dev.Close(); err != nil {
			log.Printf("failed to close %s wheel: %v", dev.Name(), err)
		}
	}
}

// run starts recording and blocks until ctx is cancelled or a component
// fails, then flushes and closes everything.
func (d *daemon) run(ctx context.Context, ln net.Listener) error {
	defer d.db.Close()
	defer d.closeDevices()

	if err := d.lifecycle.Start(); err != nil {
		return err
	}
	log.Printf("run %s started; %d frame pairs kept before each event", d.runID, d.buffer.Stats().Capacity)

	g, gctx := errgroup.WithContext(ctx)
	for _, dev := range []*wheel.Device{d.primary, d.override} {
		if dev == nil {
			continue
		}
		g.Go(func() error {
			if err := dev.Monitor(gctx); err != nil {
				return fmt.Errorf("%s wheel: %w", dev.Name(), err)
			}
			log.Printf("%s wheel monitor stopped", dev.Name())
			return nil
		})
	}
	g.Go(func() error { return d.feed.Run(gctx) })
	if d.producer != nil {
		g.Go(func() error { return d.producer.Run(gctx, d.feed) })
	}
	g.Go(func() error { return d.runner.Run(gctx) })
	g.Go(func() error {
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := d.server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		// wheels block in Read until closed
		d.closeDevices()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return errors.Join(err, d.shutdown())
}

// shutdown flushes pedal samples, closes the lifecycle and appends the
// run's length to the recording time log.
func (d *daemon) shutdown() error {
	var errs []error
	d.feed.Close()
	if err := d.pedals.Flush(context.Background()); err != nil {
		errs = append(errs, fmt.Errorf("flush pedal samples: %w", err))
	}
	if err := d.lifecycle.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close lifecycle: %w", err))
	}
	if err := recorder.AppendRecordingTime(d.fs, d.cfg.GetOutputDir(), time.Since(d.started)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
