// Package postgres mirrors in-memory mutations into a relational warehouse
// used for durability and reporting. The protocol layer never waits on it:
// failures are returned to the caller for logging only, and a circuit
// breaker keeps a down database from stalling sessions.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nimbusline/weatherline/internal/domain"
	"github.com/sony/gobreaker"
)

// Warehouse writes users and weather records to Postgres.
// It implements domain.Sink.
type Warehouse struct {
	pool    *pgxpool.Pool
	circuit *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// Open connects to the warehouse and ensures the schema exists.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Warehouse, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect warehouse: %w", err)
	}

	w := &Warehouse{
		pool: pool,
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "warehouse",
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
		logger: logger,
	}

	if err := w.createTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return w, nil
}

func (w *Warehouse) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS weather (
			id SERIAL PRIMARY KEY,
			location VARCHAR(255) NOT NULL,
			current_weather VARCHAR(255),
			temperature DOUBLE PRECISION,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION
		)`,
		`CREATE TABLE IF NOT EXISTS forecast (
			id SERIAL PRIMARY KEY,
			weather_id INT,
			day VARCHAR(255),
			temperature INT,
			FOREIGN KEY (weather_id) REFERENCES weather(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username VARCHAR(255) PRIMARY KEY,
			password VARCHAR(255) NOT NULL,
			role VARCHAR(255) NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := w.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create warehouse tables: %w", err)
		}
	}
	return nil
}

// UserRegistered upserts the account row. The warehouse mirrors the bulk
// import semantics: a re-mirrored username has password and role updated.
func (w *Warehouse) UserRegistered(ctx context.Context, user domain.User) error {
	_, err := w.circuit.Execute(func() (any, error) {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO users (username, password, role) VALUES ($1, $2, $3)
			 ON CONFLICT (username) DO UPDATE SET password = EXCLUDED.password, role = EXCLUDED.role`,
			user.Username, user.Password, string(user.Role))
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("mirror user %s: %w", user.Username, err)
	}
	return nil
}

// WeatherProvisioned appends weather rows with their forecast children in
// one transaction per batch. Duplicate locations are allowed, matching the
// in-memory store.
func (w *Warehouse) WeatherProvisioned(ctx context.Context, records []domain.WeatherRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := w.circuit.Execute(func() (any, error) {
		return nil, w.insertRecords(ctx, records)
	})
	if err != nil {
		return fmt.Errorf("mirror weather batch of %d: %w", len(records), err)
	}
	return nil
}

func (w *Warehouse) insertRecords(ctx context.Context, records []domain.WeatherRecord) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		var weatherID int
		err := tx.QueryRow(ctx,
			`INSERT INTO weather (location, current_weather, temperature, latitude, longitude)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			rec.Location, rec.CurrentWeather, rec.Temperature, rec.Latitude, rec.Longitude,
		).Scan(&weatherID)
		if err != nil {
			return err
		}

		for _, f := range rec.Forecast {
			if _, err := tx.Exec(ctx,
				`INSERT INTO forecast (weather_id, day, temperature) VALUES ($1, $2, $3)`,
				weatherID, f.Day, f.Temperature); err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

// Close releases the connection pool.
func (w *Warehouse) Close() {
	w.pool.Close()
}
