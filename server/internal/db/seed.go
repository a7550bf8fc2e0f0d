package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/soilwatch/soilwatch/pkg/types"
)

// Seed is the on-disk form of reference data loaded with -seed. JSON files
// are accepted too.
type Seed struct {
	PlantTypes []SeedPlantType `yaml:"plant_types"`
	Plants     []SeedPlant     `yaml:"plants"`
	Users      []SeedUser      `yaml:"users"`
}

// SeedPlantType is one catalog entry with its growth stages.
type SeedPlantType struct {
	Name           string      `yaml:"name"`
	ScientificName string      `yaml:"scientificName"`
	Stages         []SeedStage `yaml:"stages"`
}

// SeedStage uses the catalog's field names; bounds are kept as written.
type SeedStage struct {
	Stage    string `yaml:"stage"`
	LowN     string `yaml:"lowN"`
	HighN    string `yaml:"highN"`
	LowP     string `yaml:"lowP"`
	HighP    string `yaml:"highP"`
	LowK     string `yaml:"lowK"`
	HighK    string `yaml:"highK"`
	LowPH    string `yaml:"lowpH"`
	HighPH   string `yaml:"highpH"`
	LowTemp  string `yaml:"lowTemp"`
	HighTemp string `yaml:"highTemp"`
	LowHum   string `yaml:"lowHum"`
	HighHum  string `yaml:"highHum"`
}

// SeedPlant binds a sensor to a planted crop at its current stage.
type SeedPlant struct {
	ID           string `yaml:"id"`
	SensorID     string `yaml:"sensorId"`
	PlantType    string `yaml:"plantType"`
	Status       string `yaml:"status"`
	PlotNumber   string `yaml:"plotNumber"`
	LocationZone string `yaml:"locationZone"`
}

// SeedUser is a user who may receive alerts; only role and mobile matter.
type SeedUser struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Role   string `yaml:"role"`
	Mobile string `yaml:"mobile"`
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return &s, nil
}

// Apply upserts every entry of s. keyOf maps a plant type name to its
// catalog key.
func (s *Seed) Apply(ctx context.Context, r *Repository, keyOf func(string) string) error {
	for _, pt := range s.PlantTypes {
		key := keyOf(pt.Name)
		if key == "" {
			return fmt.Errorf("seed: plant type without name")
		}
		e := types.CatalogEntry{Name: pt.Name, ScientificName: pt.ScientificName}
		for _, st := range pt.Stages {
			e.Stages = append(e.Stages, types.CatalogStage(st))
		}
		if err := r.UpsertPlantType(ctx, key, e); err != nil {
			return err
		}
	}
	for _, p := range s.Plants {
		if p.SensorID == "" {
			return fmt.Errorf("seed: plant %q without sensorId", p.ID)
		}
		if _, err := r.UpsertPlant(ctx, types.Plant(p)); err != nil {
			return err
		}
	}
	for _, u := range s.Users {
		if _, err := r.UpsertUser(ctx, types.Recipient(u)); err != nil {
			return err
		}
	}
	slog.Info("db: seed applied",
		"plant_types", len(s.PlantTypes), "plants", len(s.Plants), "users", len(s.Users))
	return nil
}
