package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/carecam/internal/config"
	"github.com/kozaktomas/carecam/internal/database/sqlstore"
	"github.com/kozaktomas/carecam/internal/enrollment"
	"github.com/kozaktomas/carecam/internal/facedetect"
	"github.com/kozaktomas/carecam/internal/identity"
	"github.com/kozaktomas/carecam/internal/logger"
	"github.com/kozaktomas/carecam/internal/profile"
)

// app holds what every command that touches data needs.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	pool      *sqlstore.Pool
	reminders *sqlstore.ReminderRepository
	people    *sqlstore.PeopleRepository
	patients  *sqlstore.PatientRepository
}

// openApp loads the configuration, builds the logger and opens the database,
// applying pending migrations.
func openApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	if cfg.Database.IsPostgres() && cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required for postgres")
	}
	pool, err := sqlstore.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database ready", "driver", cfg.Database.Driver)

	return &app{
		cfg:       cfg,
		log:       log,
		pool:      pool,
		reminders: sqlstore.NewReminderRepository(pool),
		people:    sqlstore.NewPeopleRepository(pool),
		patients:  sqlstore.NewPatientRepository(pool),
	}, nil
}

func (a *app) Close() {
	if err := a.pool.Close(); err != nil {
		a.log.Warn("closing database", "error", err)
	}
	a.log.Sync()
}

// identities opens the enrolled identity store on the configured backend and
// loads it.
func (a *app) identities(ctx context.Context) (*identity.Store, error) {
	var persister identity.Persister
	switch a.cfg.Faces.EncodingsBackend {
	case "", "file":
		persister = identity.NewFilePersister(a.cfg.Faces.EncodingsFile)
	case "pgvector":
		repo, err := sqlstore.NewEncodingRepository(a.pool)
		if err != nil {
			return nil, err
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		persister = repo
	default:
		return nil, fmt.Errorf("unknown encodings backend %q", a.cfg.Faces.EncodingsBackend)
	}

	store := identity.NewStore(persister, a.log)
	n := store.Load(ctx)
	a.log.Info("identities loaded", "count", n, "backend", a.cfg.Faces.EncodingsBackend)
	return store, nil
}

// profiles loads the CSV profile table. A broken file is logged and served
// as empty so the database still answers.
func (a *app) profiles() (*profile.CSVSource, profile.Chain) {
	csv := profile.NewCSVSource(a.cfg.Paths.PeopleCSV, a.log)
	if err := csv.Load(); err != nil {
		a.log.Warn("loading profile table", "path", a.cfg.Paths.PeopleCSV, "error", err)
	}
	return csv, profile.Chain{csv, profile.NewDBSource(a.people)}
}

// pipeline builds the enrollment pipeline writing to both profile stores.
func (a *app) pipeline(detector *facedetect.Client, ids *identity.Store, csv *profile.CSVSource) *enrollment.Pipeline {
	return enrollment.NewPipeline(detector, ids, enrollment.Options{
		KnownFacesDir: a.cfg.Paths.KnownFacesDir,
		Profiles: []enrollment.ProfileTarget{
			{Stage: enrollment.StageProfile, Writer: csv},
			{Stage: enrollment.StagePeople, Writer: profile.NewDBSource(a.people)},
		},
	}, a.log)
}
