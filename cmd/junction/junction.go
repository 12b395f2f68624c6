// Command junction runs the intersection engine over a recorded or
// synthetic perception stream, serves live state over HTTP, and records the
// run as a store episode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/signal.report/internal/api"
	"github.com/banshee-data/signal.report/internal/config"
	"github.com/banshee-data/signal.report/internal/priority"
	"github.com/banshee-data/signal.report/internal/replay"
	"github.com/banshee-data/signal.report/internal/report"
	lights "github.com/banshee-data/signal.report/internal/signal"
	"github.com/banshee-data/signal.report/internal/store"
	"github.com/banshee-data/signal.report/internal/timeutil"
	"github.com/banshee-data/signal.report/internal/traffic"
	"github.com/banshee-data/signal.report/internal/units"
	"github.com/banshee-data/signal.report/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Run the built-in synthetic scenario")
	replayPath  = flag.String("replay", "", "Replay a recorded JSONL frame file")
	dbFile      = flag.String("db", "junction.db", "Episode database path (empty disables recording)")
	listenAddr  = flag.String("listen", ":8080", "Listen address")
	configPath  = flag.String("config", "", "Tuning config JSON (optional)")
	reportPath  = flag.String("report", "", "Write an HTML report to this path when the run ends")
	reportUnits = flag.String("units", units.MPS, "Speed units for the report")
	realtime    = flag.Bool("realtime", false, "Pace frames by wall clock instead of running flat out")
)

func main() {
	flag.Parse()

	log.Printf("junction %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	if err := run(); err != nil {
		log.Fatalf("junction: %v", err)
	}
}

func run() error {
	if *devMode == (*replayPath != "") {
		return errors.New("exactly one of -dev or -replay is required")
	}
	if *reportPath != "" && *dbFile == "" {
		return errors.New("-report requires -db")
	}
	if !units.IsValid(*reportUnits) {
		return fmt.Errorf("invalid -units %q, valid: %s", *reportUnits, units.GetValidUnitsString())
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			return err
		}
		tuning = loaded
		log.Printf("loaded tuning config from %s", *configPath)
	}

	var frames []replay.Frame
	if *devMode {
		frames = replay.Synthetic(replay.DefaultSyntheticConfig())
		log.Printf("generated synthetic scenario: %d frames", len(frames))
	} else {
		var err error
		frames, err = replay.ReadFile(*replayPath)
		if err != nil {
			return err
		}
		log.Printf("loaded %d frames from %s", len(frames), *replayPath)
	}
	if len(frames) == 0 {
		return errors.New("frame stream is empty")
	}

	laneIDs := laneIDsFromFrames(frames)
	if len(laneIDs) == 0 {
		return errors.New("frame stream has no lane assignments")
	}
	log.Printf("lanes: %v", laneIDs)

	estimator, err := traffic.NewEstimator(laneIDs, tuning.EstimatorConfig())
	if err != nil {
		return err
	}
	controller := lights.NewController(
		lights.NewFixedTimeController(tuning.FixedTimeConfig()),
		priority.NewController(tuning.PriorityConfig()),
	)

	var db *store.Store
	episodeID := ""
	if *dbFile != "" {
		db, err = store.Open(*dbFile)
		if err != nil {
			return err
		}
		defer db.Close()

		episodeID, err = db.BeginEpisode(float64(time.Now().Unix()), laneIDs)
		if err != nil {
			return err
		}
		log.Printf("recording episode %s to %s", episodeID, *dbFile)
	}

	engine := NewEngine(estimator, controller, db, episodeID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    *listenAddr,
		Handler: api.NewServer(engine, db).ServeMux(),
	}
	go func() {
		log.Printf("listening on %s", *listenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := runFrames(ctx, engine, frames, timeutil.RealClock{}, *realtime); err != nil {
		return err
	}

	if db != nil {
		if err := db.EndEpisode(episodeID, float64(time.Now().Unix())); err != nil {
			return err
		}
	}

	if *reportPath != "" {
		if err := writeReport(db, episodeID, *reportPath, *reportUnits); err != nil {
			return err
		}
		log.Printf("wrote report to %s", *reportPath)
	}

	return nil
}

// runFrames feeds the frame stream through the engine, optionally pacing
// frames against the wall clock.
func runFrames(ctx context.Context, engine *Engine, frames []replay.Frame, clock timeutil.Clock, pace bool) error {
	prev := frames[0].Time
	for _, frame := range frames {
		select {
		case <-ctx.Done():
			log.Printf("interrupted at t=%v", frame.Time)
			return nil
		default:
		}

		if pace {
			if delta := frame.Time - prev; delta > 0 {
				clock.Sleep(time.Duration(delta * float64(time.Second)))
			}
			prev = frame.Time
		}

		if err := engine.Tick(frame.Observations, frame.Time); err != nil {
			return err
		}
	}
	log.Printf("run complete: %d frames", len(frames))
	return nil
}

func writeReport(db *store.Store, episodeID, path, speedUnits string) error {
	episode, err := db.GetEpisode(episodeID)
	if err != nil {
		return err
	}
	snapshots, err := db.Snapshots(episodeID)
	if err != nil {
		return err
	}
	transitions, err := db.Transitions(episodeID)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	return report.RenderEpisode(f, episode, snapshots, transitions, report.Options{SpeedUnits: speedUnits})
}

// laneIDsFromFrames collects the distinct lane IDs seen anywhere in the
// stream, in first-seen order.
func laneIDsFromFrames(frames []replay.Frame) []string {
	seen := make(map[string]bool)
	var laneIDs []string
	for _, frame := range frames {
		for _, obs := range frame.Observations {
			if obs.HasLane() && !seen[obs.LaneID] {
				seen[obs.LaneID] = true
				laneIDs = append(laneIDs, obs.LaneID)
			}
		}
	}
	return laneIDs
}
