package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ScheduleSeed is one entry of the cron seed file
type ScheduleSeed struct {
	Enterprise string `yaml:"enterprise"`
	Schedule   string `yaml:"schedule"`
	Enabled    bool   `yaml:"enabled"`
}

type scheduleSeedFile struct {
	Schedules []ScheduleSeed `yaml:"schedules"`
}

// LoadScheduleSeeds reads cron schedules to apply at start-up.
//
// The file looks like:
//
//	schedules:
//	  - enterprise: acme
//	    schedule: "0 0 * * *"
//	    enabled: true
//
// An empty path yields no seeds.
func LoadScheduleSeeds(path string) ([]ScheduleSeed, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule seed file: %w", err)
	}

	var file scheduleSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse schedule seed file: %w", err)
	}

	seen := make(map[string]bool, len(file.Schedules))
	for i, seed := range file.Schedules {
		seed.Enterprise = strings.TrimSpace(seed.Enterprise)
		seed.Schedule = strings.TrimSpace(seed.Schedule)
		if seed.Enterprise == "" {
			return nil, fmt.Errorf("schedule %d: enterprise is required", i)
		}
		if seed.Schedule == "" {
			return nil, fmt.Errorf("schedule %d (%s): schedule is required", i, seed.Enterprise)
		}
		if seen[seed.Enterprise] {
			return nil, fmt.Errorf("schedule %d: duplicate enterprise %s", i, seed.Enterprise)
		}
		seen[seed.Enterprise] = true
		file.Schedules[i] = seed
	}

	return file.Schedules, nil
}
