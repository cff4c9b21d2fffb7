package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/carecam/internal/ai"
	"github.com/kozaktomas/carecam/internal/camera"
	"github.com/kozaktomas/carecam/internal/chat"
	"github.com/kozaktomas/carecam/internal/enrollment"
	"github.com/kozaktomas/carecam/internal/facedetect"
	"github.com/kozaktomas/carecam/internal/facematch"
	"github.com/kozaktomas/carecam/internal/recognition"
	"github.com/kozaktomas/carecam/internal/reminder"
	"github.com/kozaktomas/carecam/internal/web"
	"github.com/kozaktomas/carecam/internal/web/handlers"
	"github.com/kozaktomas/carecam/internal/web/middleware"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start recognition, reminders and the web UI",
	Long: `Start the carecam service.

Runs the camera recognition loop, the reminder sweeper, the profile file
watcher and the HTTP server until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8000, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to (overrides WEB_HOST)")
}

// newChatProvider builds the guarded fallback model. A misconfigured
// provider disables the fallback instead of failing startup.
func newChatProvider(ctx context.Context, a *app) ai.Provider {
	p, err := ai.New(ctx, a.cfg)
	if err != nil {
		a.log.Warn("chat fallback disabled", "error", err)
		return nil
	}
	a.log.Info("chat fallback ready", "provider", p.Name())
	return ai.NewGuarded(p, ai.GuardOptions{
		RatePerSecond: a.cfg.Chat.RateLimit,
		Burst:         a.cfg.Chat.Burst,
	})
}

// newCamera opens the configured camera. When that fails the recognition
// loop gets a broken source, stops at once and /status says why.
func newCamera(a *app) camera.Source {
	src, err := camera.New(&a.cfg.Camera)
	if err != nil {
		a.log.Error("camera not configured", "mode", a.cfg.Camera.Mode, "error", err)
		return camera.Broken(err)
	}
	return src
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}

	ids, err := a.identities(ctx)
	if err != nil {
		return fmt.Errorf("opening identity store: %w", err)
	}
	metric, err := facematch.MetricByName(cfg.Faces.Metric)
	if err != nil {
		return err
	}
	detector := facedetect.NewClient(cfg.Faces.DetectorURL)
	if err := detector.Ping(ctx); err != nil {
		a.log.Warn("face detector not reachable yet", "error", err)
	}
	matcher := facematch.NewMatcher(detector, ids, facematch.Options{
		Tolerance:        cfg.Faces.Tolerance,
		DownsampleFactor: cfg.Faces.DownsampleFactor,
		Metric:           metric,
		UseHNSW:          cfg.Faces.Index == "hnsw",
	})

	csv, profiles := a.profiles()
	hub := handlers.NewHub(middleware.OriginPatterns(cfg.Web.AllowedOrigins), a.log)

	src := newCamera(a)
	defer src.Close()
	svc := recognition.NewService(src, matcher, recognition.Options{
		Interval:     cfg.Camera.Interval,
		LastSeenFile: cfg.Paths.LastSeenFile(),
		Visits:       recognition.NewVisitRecorder(a.people, cfg.Recognition.VisitCooldown),
		OnChange:     hub.IdentityChanged,
	}, a.log)

	engine := reminder.NewEngine(a.reminders, reminder.Options{
		Interval:  cfg.Reminders.Interval,
		Lookahead: cfg.Reminders.Lookahead,
		Debounce:  cfg.Reminders.Debounce,
		Notify:    hub.RemindersDue,
	}, a.log)

	assistant := chat.NewAssistant(chat.Deps{
		Diary:        chat.NewDiary(cfg.Paths.ChatMemoryFile()),
		Patient:      a.patients,
		Reminders:    engine,
		RoutinesFile: cfg.Paths.RoutinesFile,
		Watcher:      svc,
		Profiles:     profiles,
		LLM:          newChatProvider(ctx, a),
	}, a.log)

	server := web.NewServer(cfg, web.Deps{
		Recognition: svc,
		Reminders:   a.reminders,
		Engine:      engine,
		People:      a.people,
		Profiles:    profiles,
		Capturer:    enrollment.NewCapturer(svc, cfg.Paths.CaptureDir),
		Pipeline:    a.pipeline(detector, ids, csv),
		Assistant:   assistant,
		Hub:         hub,
	}, a.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A dead camera ends recognition only; the rest keeps serving.
		if err := svc.Run(gctx); err != nil && !errors.Is(err, camera.ErrUnavailable) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return engine.Start(gctx)
	})
	g.Go(func() error {
		if err := csv.Watch(gctx); err != nil {
			a.log.Warn("profile table will not be reloaded", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	a.log.Info("carecam running", "url", fmt.Sprintf("http://%s:%d", cfg.Web.Host, cfg.Web.Port))
	return g.Wait()
}
