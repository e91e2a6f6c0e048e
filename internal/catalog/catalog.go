// Package catalog reads the per-year list of participants and their projects.
// It is only used to enumerate preview paths; nothing at request time depends on it.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"projectpreview/internal/domain"
)

type Project struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

type Participant struct {
	Username string    `json:"username"`
	Name     string    `json:"name,omitempty"`
	Projects []Project `json:"projects"`
}

// Catalog maps a year to its participants.
type Catalog struct {
	years map[int][]Participant
}

// Load reads a catalog file. An empty path yields an empty catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return &Catalog{years: map[int][]Participant{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes {"2025": [{"username": ..., "projects": [...]}]}.
func Parse(data []byte) (*Catalog, error) {
	var raw map[string][]Participant
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c := &Catalog{years: make(map[int][]Participant, len(raw))}
	for key, participants := range raw {
		year, err := strconv.Atoi(key)
		if err != nil || year <= 0 {
			return nil, fmt.Errorf("catalog year %q is not a positive integer", key)
		}
		for _, p := range participants {
			if p.Username == "" {
				return nil, errors.New("catalog participant without username")
			}
		}
		c.years[year] = participants
	}
	return c, nil
}

// Years returns the catalog years in ascending order.
func (c *Catalog) Years() []int {
	out := make([]int, 0, len(c.years))
	for y := range c.years {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

func (c *Catalog) Participants(year int) []Participant {
	return c.years[year]
}

// Paths lists the capture requests of one year. Entries that would not pass
// request validation are skipped.
func (c *Catalog) Paths(year int) []domain.CaptureRequest {
	var out []domain.CaptureRequest
	y := strconv.Itoa(year)
	for _, p := range c.years[year] {
		for _, proj := range p.Projects {
			req, err := domain.ParseCaptureRequest(y, p.Username, proj.Name)
			if err != nil {
				continue
			}
			out = append(out, req)
		}
	}
	return out
}

func (c *Catalog) AllPaths() []domain.CaptureRequest {
	var out []domain.CaptureRequest
	for _, y := range c.Years() {
		out = append(out, c.Paths(y)...)
	}
	return out
}
