//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/carelink/carelink/internal/domain/association"
	"github.com/carelink/carelink/internal/domain/patient"
	"github.com/carelink/carelink/internal/domain/person"
	"github.com/carelink/carelink/internal/domain/scheduling"
	"github.com/carelink/carelink/internal/domain/supporter"
	"github.com/carelink/carelink/internal/platform/credential"
	"github.com/carelink/carelink/internal/platform/db"
)

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	Pool          *pgxpool.Pool
	ConnStr       string
	MigrationsDir string
}

// globalDB is initialized once in TestMain.
var globalDB *testDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	tdb, cleanup, err := setupPostgresContainer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup postgres container: %v\n", err)
		os.Exit(1)
	}

	globalDB = tdb
	code := m.Run()
	cleanup()
	os.Exit(code)
}

func setupPostgresContainer(ctx context.Context) (*testDB, func(), error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "carelink_test",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "testpass",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start postgres container: %w", err)
	}
	terminate := func() { _ = container.Terminate(context.Background()) }

	host, err := container.Host(ctx)
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("postgres host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("postgres port: %w", err)
	}
	connStr := fmt.Sprintf("postgres://test:testpass@%s:%s/carelink_test?sslmode=disable", host, port.Port())

	// the port can open before the server accepts queries
	var pool *pgxpool.Pool
	for i := 0; i < 30; i++ {
		pool, err = db.NewPool(ctx, db.PoolConfig{DatabaseURL: connStr, MaxConns: 10, MinConns: 1})
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}

	return &testDB{
			Pool:          pool,
			ConnStr:       connStr,
			MigrationsDir: findMigrationsDir(),
		}, func() {
			pool.Close()
			terminate()
		}, nil
}

// findMigrationsDir locates the migrations directory relative to this file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// env is a fully wired set of services bound to one migrated schema.
type env struct {
	Schema       string
	Pool         *pgxpool.Pool
	PersonRepo   person.PersonRepository
	PatientRepo  patient.Repository
	Persons      *person.Service
	Supporters   *supporter.Service
	Patients     *patient.Service
	Appointments *scheduling.Service
	Guard        *association.Guard
}

// newEnv creates a fresh schema, applies all migrations and returns services
// on a pool whose search_path is pinned to it. The schema is dropped on
// cleanup.
func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	schema := "t_" + strings.ReplaceAll(uuid.NewString()[:13], "-", "_")
	require.NoError(t, db.CreateSchema(ctx, globalDB.Pool, schema, globalDB.MigrationsDir))

	pool, err := db.NewPool(ctx, db.PoolConfig{
		DatabaseURL: globalDB.ConnStr,
		MaxConns:    8,
		MinConns:    1,
		Schema:      schema,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		if _, err := globalDB.Pool.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, err)
		}
	})

	logger := zerolog.Nop()
	tx := db.NewTransactor(pool, 10*time.Second)
	hasher := credential.NewBcrypt(4)

	personRepo := person.NewPersonRepoPG(pool)
	supporterRepo := supporter.NewRepoPG(pool, personRepo, tx)
	patientRepo := patient.NewRepoPG(pool, personRepo, tx)
	guard := association.NewGuard(supporterRepo, patientRepo, logger)

	return &env{
		Schema:       schema,
		Pool:         pool,
		PersonRepo:   personRepo,
		PatientRepo:  patientRepo,
		Persons:      person.NewService(personRepo, hasher, logger),
		Supporters:   supporter.NewService(supporterRepo, personRepo, guard, hasher, logger),
		Patients:     patient.NewService(patientRepo, personRepo, supporterRepo, guard, hasher, logger),
		Appointments: scheduling.NewService(scheduling.NewAppointmentRepoPG(pool), patientRepo, tx, logger),
		Guard:        guard,
	}
}

func newPerson(name, nationalID string) person.Person {
	return person.Person{
		FullName:   name,
		Age:        42,
		NationalID: nationalID,
		PostalCode: "01310-100",
		Number:     "1000",
		Phone:      "+55 11 5555-0100",
		Credential: "s3cret",
	}
}

func (e *env) registerSupporter(t *testing.T, nationalID string) *supporter.Supporter {
	t.Helper()
	s := &supporter.Supporter{
		Person:       newPerson("Ana Souza", nationalID),
		JobTitle:     "Nurse",
		PracticeArea: "Geriatrics",
	}
	require.NoError(t, e.Supporters.Register(context.Background(), s))
	return s
}

func (e *env) registerPatient(t *testing.T, nationalID string, supporterID *uuid.UUID) *patient.Patient {
	t.Helper()
	p := &patient.Patient{
		Person:       newPerson("Carlos Lima", nationalID),
		ContactPhone: "+55 11 5555-0199",
		SupporterID:  supporterID,
	}
	require.NoError(t, e.Patients.Register(context.Background(), p))
	return p
}
