// Package provision merges externally supplied weather batches into the live
// store and its backing file. A batch is all-or-nothing: the first invalid
// entry aborts the whole call with nothing applied.
package provision

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/nimbusline/weatherline/internal/domain"
	"github.com/nimbusline/weatherline/internal/seed"
	"github.com/nimbusline/weatherline/internal/store"
)

// weatherEntry mirrors the wire shape of one batch entry. Pointer fields
// distinguish "absent" from zero values so required-field validation matches
// the file format contract.
type weatherEntry struct {
	Location       *string         `json:"location" validate:"required"`
	CurrentWeather *string         `json:"currentWeather" validate:"required"`
	Temperature    *float64        `json:"temperature" validate:"required"`
	Latitude       *float64        `json:"latitude" validate:"required"`
	Longitude      *float64        `json:"longitude" validate:"required"`
	Forecast       []forecastEntry `json:"forecast"`
	hasForecast    bool
}

type forecastEntry struct {
	Day         *string `json:"day" validate:"required"`
	Temperature *int    `json:"temperature" validate:"required"`
}

// UnmarshalJSON tracks whether the forecast key was present at all; an empty
// forecast array is valid, a missing one is not.
func (e *weatherEntry) UnmarshalJSON(data []byte) error {
	type alias weatherEntry
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*e = weatherEntry(a)
	_, e.hasForecast = keys["forecast"]
	return nil
}

// Service validates provisioning batches and applies them to the in-memory
// store and the persisted weather file.
type Service struct {
	dataFile string
	store    *store.WeatherStore
	loader   *seed.Loader
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService creates a provisioning service writing through to dataFile.
func NewService(dataFile string, weatherStore *store.WeatherStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		dataFile: dataFile,
		store:    weatherStore,
		loader:   seed.NewLoader(logger),
		validate: validator.New(),
		logger:   logger,
	}
}

// Provision reads a batch file, validates every entry, and on success appends
// the batch to the live store and rewrites the backing file with the merged
// set. Any parse or validation failure aborts the whole batch; the store and
// file are left untouched.
func (s *Service) Provision(path string) ([]domain.WeatherRecord, error) {
	existing, err := s.loader.LoadWeatherRecords(s.dataFile)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file %s: %w", path, err)
	}

	var entries []weatherEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse batch file %s: %w", path, err)
	}

	records := make([]domain.WeatherRecord, 0, len(entries))
	for i, entry := range entries {
		rec, err := s.validateEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		records = append(records, rec)
	}

	s.store.AppendAll(records)

	merged := append(existing, records...)
	if err := seed.WriteWeatherRecords(s.dataFile, merged); err != nil {
		// The in-memory append stands; the file catches up on the next
		// successful provisioning call.
		s.logger.Error("weather file rewrite failed", "path", s.dataFile, "error", err)
	}

	s.logger.Info("weather batch provisioned", "source", path, "records", len(records), "total", len(merged))
	return records, nil
}

func (s *Service) validateEntry(entry weatherEntry) (domain.WeatherRecord, error) {
	if err := s.validate.Struct(entry); err != nil {
		return domain.WeatherRecord{}, fmt.Errorf("missing required fields in weather data: %w", err)
	}
	if !entry.hasForecast {
		return domain.WeatherRecord{}, fmt.Errorf("missing required fields in weather data: forecast")
	}

	forecast := make([]domain.ForecastEntry, 0, len(entry.Forecast))
	for _, f := range entry.Forecast {
		if err := s.validate.Struct(f); err != nil {
			return domain.WeatherRecord{}, fmt.Errorf("invalid forecast format: %w", err)
		}
		forecast = append(forecast, domain.ForecastEntry{Day: *f.Day, Temperature: *f.Temperature})
	}

	return domain.WeatherRecord{
		Location:       *entry.Location,
		CurrentWeather: *entry.CurrentWeather,
		Temperature:    *entry.Temperature,
		Latitude:       *entry.Latitude,
		Longitude:      *entry.Longitude,
		Forecast:       forecast,
	}, nil
}
