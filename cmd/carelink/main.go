package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carelink/carelink/internal/config"
	"github.com/carelink/carelink/internal/domain/association"
	"github.com/carelink/carelink/internal/domain/patient"
	"github.com/carelink/carelink/internal/domain/person"
	"github.com/carelink/carelink/internal/domain/scheduling"
	"github.com/carelink/carelink/internal/domain/supporter"
	"github.com/carelink/carelink/internal/platform/credential"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/internal/platform/logging"
)

// schemaFlag overrides DB_SCHEMA for a single invocation.
var schemaFlag string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "carelink",
		Short:        "Care case management: people, supporters, patients and appointments",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&schemaFlag, "schema", "", "Database schema (defaults to DB_SCHEMA)")

	root.AddCommand(migrateCmd())
	root.AddCommand(schemaCmd())
	root.AddCommand(appointmentsCmd())
	root.AddCommand(supportersCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(healthCmd())
	return root
}

// app holds the wired services for one command invocation.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool

	persons      *person.Service
	supporters   *supporter.Service
	patients     *patient.Service
	appointments *scheduling.Service
}

func newApp(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool) *app {
	tx := db.NewTransactor(pool, cfg.DBOpTimeout)
	hasher := credential.NewBcrypt(cfg.BcryptCost)

	personRepo := person.NewPersonRepoPG(pool)
	supporterRepo := supporter.NewRepoPG(pool, personRepo, tx)
	patientRepo := patient.NewRepoPG(pool, personRepo, tx)
	appointmentRepo := scheduling.NewAppointmentRepoPG(pool)

	guard := association.NewGuard(supporterRepo, patientRepo, logger)

	return &app{
		cfg:          cfg,
		logger:       logger,
		pool:         pool,
		persons:      person.NewService(personRepo, hasher, logger),
		supporters:   supporter.NewService(supporterRepo, personRepo, guard, hasher, logger),
		patients:     patient.NewService(patientRepo, personRepo, supporterRepo, guard, hasher, logger),
		appointments: scheduling.NewService(appointmentRepo, patientRepo, tx, logger),
	}
}

func schemaOrDefault(cfg *config.Config) string {
	if schemaFlag != "" {
		return schemaFlag
	}
	return cfg.DBSchema
}

// bootstrap loads configuration, builds the logger and opens the pool.
func bootstrap(ctx context.Context) (*config.Config, zerolog.Logger, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	logger := logging.New(os.Stderr, cfg.Env, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return nil, logger, nil, err
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return nil, logger, nil, err
	}
	logger.Debug().Msg("connected to database")
	return cfg, logger, pool, nil
}

// withApp runs fn with wired services on a connection pinned to the
// configured schema, and logs the outcome.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, pool, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	a := newApp(cfg, logger, pool)
	start := time.Now()
	err = db.Scoped(ctx, pool, schemaOrDefault(cfg), func(ctx context.Context) error {
		return fn(ctx, a)
	})
	logging.Operation(logger, cmd.CommandPath(), start, err)
	return err
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	var dir string
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd, func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				schema := schemaOrDefault(cfg)
				migrator := db.NewMigrator(pool, migrationsDir(dir, cfg))
				fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)

				count, err := migrator.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().StringVar(&dir, "dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd, func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				schema := schemaOrDefault(cfg)
				statuses, err := db.NewMigrator(pool, migrationsDir(dir, cfg)).Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd.OutOrStdout(), schema, statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().StringVar(&dir, "dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrationsDir(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.MigrationsDir
}

// withPool is withApp for commands that manage the schema itself and must not
// pin a search_path.
func withPool(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, pool, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	start := time.Now()
	err = fn(ctx, cfg, pool)
	logging.Operation(logger, cmd.CommandPath(), start, err)
	return err
}

func printMigrationStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage deployment schemas",
	}

	var name, dir string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a schema and apply all migrations to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			return withPool(cmd, func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Creating schema: %s\n", name)
				if err := db.CreateSchema(ctx, pool, name, migrationsDir(dir, cfg)); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Schema created successfully.")
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "Schema name")
	createCmd.Flags().StringVar(&dir, "dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(createCmd)
	return cmd
}

func appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "Query appointments",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "today",
		Short: "List today's scheduled appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				items, err := a.appointments.Today(ctx)
				if err != nil {
					return err
				}
				printAppointments(cmd.OutOrStdout(), items)
				return nil
			})
		},
	})

	var doctor, at string
	availCmd := &cobra.Command{
		Use:   "availability",
		Short: "Check whether a doctor is free at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			if doctor == "" {
				return fmt.Errorf("--doctor is required")
			}
			when, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("--at must be an RFC 3339 time: %w", err)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				free, err := a.appointments.CheckAvailability(ctx, doctor, when)
				if err != nil {
					return err
				}
				if free {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is available at %s\n", doctor, when.Format(time.RFC3339))
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is unavailable at %s\n", doctor, when.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	availCmd.Flags().StringVar(&doctor, "doctor", "", "Doctor name")
	availCmd.Flags().StringVar(&at, "at", "", "Time to check (RFC 3339)")
	cmd.AddCommand(availCmd)

	return cmd
}

func printAppointments(w io.Writer, items []*scheduling.Appointment) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No appointments.")
		return
	}
	fmt.Fprintf(w, "%-20s %-30s %-36s %s\n", "TIME", "DOCTOR", "PATIENT", "STATUS")
	for _, a := range items {
		fmt.Fprintf(w, "%-20s %-30s %-36s %s\n",
			a.ScheduledAt.Format("2006-01-02 15:04"), a.DoctorName, a.PatientID, a.Status)
	}
}

func supportersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "supporters",
		Short: "Query supporters",
	}

	var id string
	canDeleteCmd := &cobra.Command{
		Use:   "can-delete",
		Short: "Report whether a supporter has no linked patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			supporterID, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("--id must be a UUID: %w", err)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				ok, err := a.supporters.CanDelete(ctx, supporterID)
				if err != nil {
					return err
				}
				linked, err := a.supporters.CountLinkedPatients(ctx, supporterID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "can delete: %t (linked patients: %d)\n", ok, linked)
				return nil
			})
		},
	}
	canDeleteCmd.Flags().StringVar(&id, "id", "", "Supporter id")
	cmd.AddCommand(canDeleteCmd)
	return cmd
}

type stats struct {
	Persons      int
	Supporters   int
	Patients     int
	Appointments map[scheduling.Status]int
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				var s stats
				var err error
				if s.Persons, err = a.persons.CountPersons(ctx); err != nil {
					return err
				}
				if s.Supporters, err = a.supporters.Count(ctx); err != nil {
					return err
				}
				if s.Patients, err = a.patients.Count(ctx); err != nil {
					return err
				}
				if s.Appointments, err = a.appointments.CountByStatus(ctx); err != nil {
					return err
				}
				printStats(cmd.OutOrStdout(), s)
				return nil
			})
		},
	}
}

func printStats(w io.Writer, s stats) {
	fmt.Fprintf(w, "persons:    %d\n", s.Persons)
	fmt.Fprintf(w, "supporters: %d\n", s.Supporters)
	fmt.Fprintf(w, "patients:   %d\n", s.Patients)

	statuses := make([]string, 0, len(s.Appointments))
	for st := range s.Appointments {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		fmt.Fprintf(w, "appointments %-10s %d\n", st+":", s.Appointments[scheduling.Status(st)])
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping the database and print pool statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd, func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				st, err := db.Check(ctx, pool)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok: %d/%d connections in use, %d idle\n",
					st.AcquiredConns, st.MaxConns, st.IdleConns)
				return nil
			})
		},
	}
}
