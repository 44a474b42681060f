// Package desired loads the declared state of zones from a config directory.
//
// The directory holds one redirect file per zone, named after the zone
// (example.com.yaml, example.com-redirects.yaml, ...), and an optional settings
// baseline shared by every zone in .settings.yaml or .settings.toml.
package desired

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/evanofslack/cf-zone-sync/internal/redirect"
)

// Baseline file names, in lookup order.
var settingsFiles = []string{".settings.yaml", ".settings.toml"}

// redirectFile distinguishes an absent redirects key (nil) from an empty list.
type redirectFile struct {
	Redirects *[]redirect.Rule `yaml:"redirects"`
}

type Store struct {
	dir      string
	validate *validator.Validate
}

func New(dir string) *Store {
	return &Store{
		dir:      dir,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Store) Dir() string {
	return s.dir
}

// Settings returns the settings baseline as id -> value.
func (s *Store) Settings() (map[string]any, error) {
	for _, name := range settingsFiles {
		path := filepath.Join(s.dir, name)
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}

		settings := make(map[string]any)
		if strings.HasSuffix(name, ".toml") {
			if _, err := toml.DecodeFile(path, &settings); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		} else if err := decodeYAML(path, &settings, false); err != nil {
			return nil, err
		}
		slog.Debug("Loaded settings baseline", "path", path, "count", len(settings))
		return settings, nil
	}
	return nil, fmt.Errorf("no settings baseline in %s: %w", s.dir, fs.ErrNotExist)
}

// Redirects returns the declared redirects for zone with defaults applied.
func (s *Store) Redirects(zone string) ([]redirect.Rule, error) {
	path, err := s.redirectFile(zone)
	if err != nil {
		return nil, err
	}

	var file redirectFile
	if err := decodeYAML(path, &file, true); err != nil {
		return nil, err
	}
	if file.Redirects == nil {
		return nil, fmt.Errorf("%s has no redirects key", path)
	}

	rules := make([]redirect.Rule, 0, len(*file.Redirects))
	var problems []string
	for i, rule := range *file.Redirects {
		if err := s.validate.Struct(rule); err != nil {
			problems = append(problems, describe(i, err))
			continue
		}
		rules = append(rules, rule.WithDefaults(zone))
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid redirects in %s: %s", path, strings.Join(problems, "; "))
	}
	slog.Debug("Loaded redirects", "zone", zone, "path", path, "count", len(rules))
	return rules, nil
}

// redirectFile picks the first YAML file whose name starts with zone.
func (s *Store) redirectFile(zone string) (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", fmt.Errorf("read config dir %s: %w", s.dir, err)
	}

	var matches []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, zone) {
			continue
		}
		if ext := filepath.Ext(name); ext != ".yaml" && ext != ".yml" {
			continue
		}
		matches = append(matches, name)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no redirect file for %s in %s: %w", zone, s.dir, fs.ErrNotExist)
	case 1:
	default:
		slog.Warn("Several redirect files match zone, using the first", "zone", zone, "files", matches)
	}
	return filepath.Join(s.dir, matches[0]), nil
}

// decodeYAML tolerates an empty file. strict rejects keys out has no field for.
func decodeYAML(path string, out any, strict bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("fail close file", "path", path, "error", err)
		}
	}()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(strict)
	if err := decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func describe(index int, err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Sprintf("redirect %d: %v", index, err)
	}
	parts := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		parts = append(parts, fmt.Sprintf("redirect %d: %s failed on '%s' (value: '%v')", index, fe.Field(), fe.Tag(), fe.Value()))
	}
	return strings.Join(parts, "; ")
}
