package journal

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores that hold no journal for a cruise id.
var ErrNotFound = errors.New("journal not found")

// Journal is everything known about one cruise.
type Journal struct {
	Version string  `yaml:"version"`
	Cruise  Cruise  `yaml:"cruise"`
	Entries []Entry `yaml:"entries"`
}

// Cruise is the voyage metadata shown on the intro card.
type Cruise struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Ship      string `yaml:"ship,omitempty"`
	HomePort  string `yaml:"home_port,omitempty"`
	StartDate string `yaml:"start_date,omitempty"` // YYYY-MM-DD
	EndDate   string `yaml:"end_date,omitempty"`
}

// Entry is one journal day.
type Entry struct {
	ID         string     `yaml:"id"`
	Day        int        `yaml:"day"`
	Date       string     `yaml:"date,omitempty"`
	Port       string     `yaml:"port,omitempty"`
	Title      string     `yaml:"title,omitempty"`
	Text       string     `yaml:"text,omitempty"`
	Photos     []string   `yaml:"photos,omitempty"`
	Activities []Activity `yaml:"activities,omitempty"`
}

// Activity is something done on a day, with its own photos.
type Activity struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Photos []string `yaml:"photos,omitempty"`
}

// Store loads journals by cruise id.
type Store interface {
	Load(ctx context.Context, cruiseID string) (*Journal, error)
}

// PhotoIDs flattens photo ids in entry order; within an entry its own photos
// come first, then each activity's photos. Duplicates are kept.
func (j *Journal) PhotoIDs() []string {
	var ids []string
	for _, e := range j.Entries {
		ids = append(ids, e.Photos...)
		for _, a := range e.Activities {
			ids = append(ids, a.Photos...)
		}
	}
	return ids
}

// Subtitle is the line under the voyage title: home port and dates when known.
func (c Cruise) Subtitle() string {
	switch {
	case c.HomePort != "" && c.StartDate != "" && c.EndDate != "":
		return fmt.Sprintf("%s · %s – %s", c.HomePort, c.StartDate, c.EndDate)
	case c.HomePort != "":
		return c.HomePort
	case c.StartDate != "" && c.EndDate != "":
		return fmt.Sprintf("%s – %s", c.StartDate, c.EndDate)
	}
	return c.Ship
}

// Validate checks the fields the stores rely on.
func (j *Journal) Validate() error {
	if j.Cruise.ID == "" {
		return errors.New("cruise id is required")
	}
	seen := make(map[string]bool, len(j.Entries))
	for i, e := range j.Entries {
		if e.ID == "" {
			return fmt.Errorf("entry %d: id is required", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("entry %d: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}
