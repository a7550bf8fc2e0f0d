package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/soilwatch/soilwatch/pkg/types"
)

// Plant binds a sensor to a plant and records its current stage.
type Plant struct {
	ID           string `gorm:"primaryKey;size:64"`
	SensorID     string `gorm:"uniqueIndex;size:128;not null"`
	PlantType    string `gorm:"size:128"`
	Status       string `gorm:"size:64"`
	PlotNumber   string `gorm:"size:64"`
	LocationZone string `gorm:"size:64"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BeforeCreate assigns a UUID when the plant has no id.
func (p *Plant) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p Plant) toType() types.Plant {
	return types.Plant{
		ID:           p.ID,
		SensorID:     p.SensorID,
		PlantType:    p.PlantType,
		Status:       p.Status,
		PlotNumber:   p.PlotNumber,
		LocationZone: p.LocationZone,
	}
}

// PlantType is a catalog entry keyed by its normalized type name.
type PlantType struct {
	Key            string  `gorm:"primaryKey;column:type_key;size:128"`
	Name           string  `gorm:"size:128"`
	ScientificName string  `gorm:"size:256"`
	Stages         []Stage `gorm:"foreignKey:PlantTypeKey;references:Key;constraint:OnDelete:CASCADE"`
}

// Stage holds the raw bounds of one lifecycle stage. Bounds stay strings as
// the catalog is maintained by hand and may carry blanks or typos.
type Stage struct {
	ID           uint   `gorm:"primaryKey"`
	PlantTypeKey string `gorm:"index;size:128;not null"`
	Position     int
	Name         string `gorm:"size:64"`
	LowN         string `gorm:"size:32"`
	HighN        string `gorm:"size:32"`
	LowP         string `gorm:"size:32"`
	HighP        string `gorm:"size:32"`
	LowK         string `gorm:"size:32"`
	HighK        string `gorm:"size:32"`
	LowPH        string `gorm:"column:low_ph;size:32"`
	HighPH       string `gorm:"column:high_ph;size:32"`
	LowTemp      string `gorm:"size:32"`
	HighTemp     string `gorm:"size:32"`
	LowHum       string `gorm:"size:32"`
	HighHum      string `gorm:"size:32"`
}

func (t PlantType) toType() types.CatalogEntry {
	e := types.CatalogEntry{
		Name:           t.Name,
		ScientificName: t.ScientificName,
		Stages:         make([]types.CatalogStage, 0, len(t.Stages)),
	}
	for _, s := range t.Stages {
		e.Stages = append(e.Stages, types.CatalogStage{
			Stage: s.Name,
			LowN:  s.LowN, HighN: s.HighN,
			LowP: s.LowP, HighP: s.HighP,
			LowK: s.LowK, HighK: s.HighK,
			LowPH: s.LowPH, HighPH: s.HighPH,
			LowTemp: s.LowTemp, HighTemp: s.HighTemp,
			LowHum: s.LowHum, HighHum: s.HighHum,
		})
	}
	return e
}

func stageFrom(key string, pos int, s types.CatalogStage) Stage {
	return Stage{
		PlantTypeKey: key,
		Position:     pos,
		Name:         s.Stage,
		LowN:         s.LowN, HighN: s.HighN,
		LowP: s.LowP, HighP: s.HighP,
		LowK: s.LowK, HighK: s.HighK,
		LowPH: s.LowPH, HighPH: s.HighPH,
		LowTemp: s.LowTemp, HighTemp: s.HighTemp,
		LowHum: s.LowHum, HighHum: s.HighHum,
	}
}

// User is a directory entry. Role is stored lower-cased.
type User struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:128"`
	Role      string `gorm:"index;size:32"`
	Mobile    string `gorm:"size:32"`
	CreatedAt time.Time
}

// BeforeCreate assigns a UUID when the user has no id.
func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// AlertRecord is a delivered alert, one row per suppression identity.
type AlertRecord struct {
	Identity         string                   `gorm:"primaryKey;size:64"`
	PlantID          string                   `gorm:"index;size:64"`
	PlantName        string                   `gorm:"size:128"`
	PlotNumber       string                   `gorm:"size:64"`
	Stage            string                   `gorm:"size:64"`
	SensorID         string                   `gorm:"size:128"`
	ReadingTimestamp time.Time
	Violations       []types.Violation        `gorm:"serializer:json"`
	Recipients       []types.RecipientOutcome `gorm:"serializer:json"`
	Message          string                   `gorm:"type:text"`
	SentAt           time.Time                `gorm:"index;not null"`
}

func alertFrom(r types.AlertRecord) AlertRecord {
	return AlertRecord{
		Identity:         r.Identity,
		PlantID:          r.PlantID,
		PlantName:        r.PlantName,
		PlotNumber:       r.PlotNumber,
		Stage:            r.Stage,
		SensorID:         r.SensorID,
		ReadingTimestamp: r.ReadingTimestamp.UTC(),
		Violations:       r.Violations,
		Recipients:       r.Recipients,
		Message:          r.Message,
		SentAt:           r.SentAt.UTC(),
	}
}

func (a AlertRecord) toType() types.AlertRecord {
	return types.AlertRecord{
		Identity:         a.Identity,
		PlantID:          a.PlantID,
		PlantName:        a.PlantName,
		PlotNumber:       a.PlotNumber,
		Stage:            a.Stage,
		SensorID:         a.SensorID,
		ReadingTimestamp: a.ReadingTimestamp,
		Violations:       a.Violations,
		Recipients:       a.Recipients,
		Message:          a.Message,
		SentAt:           a.SentAt,
	}
}
