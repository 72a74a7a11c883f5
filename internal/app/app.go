// Package app builds and owns every component of the practice data layer.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/practice-local/internal/config"
	"github.com/jwalitptl/practice-local/internal/hooks"
	"github.com/jwalitptl/practice-local/internal/repository/sqlite"
	"github.com/jwalitptl/practice-local/internal/schema"
	"github.com/jwalitptl/practice-local/internal/service/appointment"
	"github.com/jwalitptl/practice-local/internal/service/document"
	"github.com/jwalitptl/practice-local/internal/service/note"
	"github.com/jwalitptl/practice-local/internal/service/patient"
	"github.com/jwalitptl/practice-local/internal/state"
	"github.com/jwalitptl/practice-local/pkg/logger"
	"github.com/jwalitptl/practice-local/pkg/metrics"
	"github.com/jwalitptl/practice-local/pkg/validator"
)

type Services struct {
	Patients     *patient.Service
	Appointments *appointment.Service
	Notes        *note.Service
	Documents    *document.Service
}

type Stores struct {
	Patients     *state.PatientStore
	Appointments *state.AppointmentStore
	Notes        *state.NoteStore
	Documents    *state.DocumentStore
}

// App is the application context. Nothing in the data layer is a package
// level singleton; everything hangs off an App.
type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Metrics  *metrics.Metrics
	DB       *sqlite.DB
	Version  int
	Services Services
	Stores   Stores
}

type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	logOutput  io.Writer
	now        func() time.Time
	location   *time.Location
}

// WithRegisterer registers the metrics with reg. Unregistered by default.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLocation sets the zone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

// New opens the database, brings its schema up to date and wires the
// repositories, services and stores. A failed upgrade is returned as an
// *errors.MigrationError and must be treated as fatal.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     o.logOutput,
		Console:    cfg.Log.Console,
	})
	m := metrics.New(cfg.Metrics.Namespace, o.registerer)
	defaults := hooks.Defaults{AppointmentPrice: cfg.Appointments.DefaultPrice}

	db, err := sqlite.Open(ctx, sqlite.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout(),
		Defaults:    defaults,
	}, sqlite.WithClock(o.now), sqlite.WithMetrics(m), sqlite.WithLogger(log))
	if err != nil {
		return nil, err
	}

	mgr, err := schema.NewManager(schema.Versions(defaults), log, m)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	version, err := mgr.Upgrade(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &App{Config: cfg, Log: log, Metrics: m, DB: db, Version: version}

	v := validator.New()
	patients := sqlite.NewPatientRepository(db)
	appointments := sqlite.NewAppointmentRepository(db)
	a.Services = Services{
		Patients: patient.NewService(patients, appointments, v, log, patient.WithClock(o.now)),
		Appointments: appointment.NewService(appointments, v, log,
			appointment.WithClock(o.now), appointment.WithDefaultDuration(cfg.Appointments.DefaultDuration)),
		Notes:     note.NewService(sqlite.NewNoteRepository(db), v, log),
		Documents: document.NewService(sqlite.NewDocumentRepository(db), v, log),
	}

	storeOpts := state.Options{Logger: log, Metrics: m, Now: o.now}
	a.Stores = Stores{
		Patients: state.NewPatientStore(a.Services.Patients, storeOpts),
		Appointments: state.NewAppointmentStore(a.Services.Appointments, state.AppointmentStoreConfig{
			ReminderWindow: cfg.Reminders.Window,
			UpcomingLimit:  cfg.Appointments.UpcomingLimit,
			Location:       o.location,
		}, storeOpts),
		Notes:     state.NewNoteStore(a.Services.Notes, storeOpts),
		Documents: state.NewDocumentStore(a.Services.Documents, storeOpts),
	}
	// appointment writes change every patient's last/next summary
	a.Stores.Appointments.OnChange(a.Stores.Patients.Invalidate)
	a.Stores.Patients.OnChange(func(c state.PatientChange) {
		if c.Op == state.PatientDeleted {
			a.Stores.Appointments.ForgetPatient(c.ID)
			return
		}
		a.Stores.Appointments.Invalidate()
	})

	log.Info("practice data layer ready", "schema_version", version, "database", cfg.Database.Path)
	return a, nil
}

func (a *App) Close() error {
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
