// Package seed reads and writes the flat-file representations backing the
// in-memory stores: a JSON array of weather records and a comma-separated
// users file. Both formats are shared with external tooling, so they are
// reproduced exactly (see the fixture generator in cmd/seedgen).
package seed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nimbusline/weatherline/internal/domain"
)

// Loader parses seed files into the initial in-memory snapshot.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// LoadWeatherRecords reads the weather JSON file. A missing file yields an
// empty record set, letting a fresh deployment start cold.
func (l *Loader) LoadWeatherRecords(path string) ([]domain.WeatherRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Warn("weather seed file missing, starting with empty store", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("read weather file %s: %w", path, err)
	}

	var records []domain.WeatherRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse weather file %s: %w", path, err)
	}
	return records, nil
}

// LoadUsers reads the users file: one "username,password,role" line per
// account. Blank lines and lines starting with '#' are ignored; malformed
// lines are logged and skipped rather than failing the whole load.
func (l *Loader) LoadUsers(path string) ([]domain.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Warn("users seed file missing, starting with empty store", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("read users file %s: %w", path, err)
	}

	var users []domain.User
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			l.logger.Warn("skipping malformed user line", "line", line)
			continue
		}
		users = append(users, domain.User{
			Username: strings.TrimSpace(parts[0]),
			Password: strings.TrimSpace(parts[1]),
			Role:     domain.Role(strings.TrimSpace(parts[2])),
		})
	}
	return users, nil
}

// WriteWeatherRecords rewrites the weather JSON file with the full record set.
func WriteWeatherRecords(path string, records []domain.WeatherRecord) error {
	if records == nil {
		records = []domain.WeatherRecord{}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("encode weather records: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write weather file %s: %w", path, err)
	}
	return nil
}

// WriteUsers rewrites the users file with the full account snapshot.
func WriteUsers(path string, users []domain.User) error {
	var b strings.Builder
	for _, u := range users {
		fmt.Fprintf(&b, "%s,%s,%s\n", u.Username, u.Password, u.Role)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write users file %s: %w", path, err)
	}
	return nil
}
