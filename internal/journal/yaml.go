package journal

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const Version = "1.0"

// WriteFile writes a journal to a YAML file.
func WriteFile(j *Journal, path string) error {
	if j.Version == "" {
		j.Version = Version
	}
	data, err := yaml.Marshal(j)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadFile reads and validates a journal YAML file.
func ReadFile(path string) (*Journal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Journal, error) {
	var j Journal
	if err := yaml.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse journal: %w", err)
	}
	if err := j.Validate(); err != nil {
		return nil, fmt.Errorf("invalid journal: %w", err)
	}
	return &j, nil
}

// FileStore serves a single journal read from YAML.
type FileStore struct {
	Journal *Journal
}

func (s *FileStore) Load(ctx context.Context, cruiseID string) (*Journal, error) {
	if s.Journal == nil || s.Journal.Cruise.ID != cruiseID {
		return nil, fmt.Errorf("cruise %q: %w", cruiseID, ErrNotFound)
	}
	return s.Journal, nil
}
