package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedService is one entry of the known-services seed file. Seeds are merged
// into every discovery run ahead of portal enumeration.
type SeedService struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// seedFile is the on-disk shape of the known-services file.
type seedFile struct {
	Services []SeedService `yaml:"services"`
}

// LoadSeeds reads the known-services seed file. A missing file is not an
// error; the seed list is optional.
func LoadSeeds(path string) ([]SeedService, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}

	seeds := make([]SeedService, 0, len(f.Services))
	for i, s := range f.Services {
		if s.URL == "" {
			return nil, fmt.Errorf("seed file %s: entry %d has no url", path, i)
		}
		if s.Name == "" {
			s.Name = s.URL
		}
		seeds = append(seeds, s)
	}

	return seeds, nil
}

// SaveSeeds writes the seed list back to disk. Used when a service is added
// at runtime so it survives restarts.
func SaveSeeds(path string, seeds []SeedService) error {
	data, err := yaml.Marshal(seedFile{Services: seeds})
	if err != nil {
		return fmt.Errorf("encoding seed file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing seed file %s: %w", path, err)
	}
	return nil
}
