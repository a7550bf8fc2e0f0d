package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/soilwatch/soilwatch/pkg/types"
)

// Repository is the gorm-backed store for plants, catalog, users and alert
// records. It is safe for concurrent use.
type Repository struct {
	db *gorm.DB
}

// New wraps an open, migrated database.
func New(gdb *gorm.DB) *Repository {
	return &Repository{db: gdb}
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ── plants ───────────────────────────────────────────────────────────────────

// PlantBySensor returns the plant bound to sensorID, or (nil, nil).
func (r *Repository) PlantBySensor(ctx context.Context, sensorID string) (*types.Plant, error) {
	var row Plant
	err := r.db.WithContext(ctx).Where("sensor_id = ?", sensorID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: plant for sensor %q: %w", sensorID, err)
	}
	p := row.toType()
	return &p, nil
}

// UpsertPlant creates or updates the plant bound to p.SensorID and returns
// the stored row.
func (r *Repository) UpsertPlant(ctx context.Context, p types.Plant) (types.Plant, error) {
	row := Plant{
		ID:           p.ID,
		SensorID:     p.SensorID,
		PlantType:    p.PlantType,
		Status:       p.Status,
		PlotNumber:   p.PlotNumber,
		LocationZone: p.LocationZone,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "sensor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plant_type", "status", "plot_number", "location_zone", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return types.Plant{}, fmt.Errorf("db: upsert plant %q: %w", p.SensorID, err)
	}
	stored, err := r.PlantBySensor(ctx, p.SensorID)
	if err != nil || stored == nil {
		return types.Plant{}, fmt.Errorf("db: reload plant %q: %w", p.SensorID, err)
	}
	return *stored, nil
}

// ── catalog ──────────────────────────────────────────────────────────────────

// PlantType returns the catalog entry stored under key, or (nil, nil).
func (r *Repository) PlantType(ctx context.Context, key string) (*types.CatalogEntry, error) {
	var row PlantType
	err := r.db.WithContext(ctx).
		Preload("Stages", func(tx *gorm.DB) *gorm.DB { return tx.Order("position") }).
		Where("type_key = ?", key).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: plant type %q: %w", key, err)
	}
	e := row.toType()
	return &e, nil
}

// UpsertPlantType stores e under key, replacing any stages held before.
func (r *Repository) UpsertPlantType(ctx context.Context, key string, e types.CatalogEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := PlantType{Key: key, Name: e.Name, ScientificName: e.ScientificName}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "type_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "scientific_name"}),
		}).Omit("Stages").Create(&row).Error; err != nil {
			return fmt.Errorf("db: upsert plant type %q: %w", key, err)
		}
		if err := tx.Where("plant_type_key = ?", key).Delete(&Stage{}).Error; err != nil {
			return fmt.Errorf("db: clear stages of %q: %w", key, err)
		}
		if len(e.Stages) == 0 {
			return nil
		}
		stages := make([]Stage, 0, len(e.Stages))
		for i, s := range e.Stages {
			stages = append(stages, stageFrom(key, i, s))
		}
		if err := tx.Create(&stages).Error; err != nil {
			return fmt.Errorf("db: insert stages of %q: %w", key, err)
		}
		return nil
	})
}

// ── users ────────────────────────────────────────────────────────────────────

// RecipientsByRoles lists users holding any of roles, compared
// case-insensitively, ordered by name.
func (r *Repository) RecipientsByRoles(ctx context.Context, roles []string) ([]types.Recipient, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	lowered := make([]string, 0, len(roles))
	for _, role := range roles {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(role)))
	}

	var rows []User
	err := r.db.WithContext(ctx).
		Where("role IN ?", lowered).
		Order("name").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("db: recipients for roles %v: %w", roles, err)
	}
	out := make([]types.Recipient, 0, len(rows))
	for _, u := range rows {
		out = append(out, types.Recipient{ID: u.ID, Name: u.Name, Role: u.Role, Mobile: u.Mobile})
	}
	return out, nil
}

// UpsertUser creates or updates a directory entry. An empty ID creates a
// new user.
func (r *Repository) UpsertUser(ctx context.Context, u types.Recipient) (types.Recipient, error) {
	row := User{
		ID:     u.ID,
		Name:   u.Name,
		Role:   strings.ToLower(strings.TrimSpace(u.Role)),
		Mobile: strings.TrimSpace(u.Mobile),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "role", "mobile"}),
	}).Create(&row).Error
	if err != nil {
		return types.Recipient{}, fmt.Errorf("db: upsert user %q: %w", u.Name, err)
	}
	return types.Recipient{ID: row.ID, Name: row.Name, Role: row.Role, Mobile: row.Mobile}, nil
}

// ── alert records ────────────────────────────────────────────────────────────

// LatestByIdentity returns the record stored for identity, or (nil, nil).
func (r *Repository) LatestByIdentity(ctx context.Context, identity string) (*types.AlertRecord, error) {
	var row AlertRecord
	err := r.db.WithContext(ctx).Where("identity = ?", identity).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: alert %s: %w", identity, err)
	}
	rec := row.toType()
	return &rec, nil
}

// Save upserts rec keyed by its identity; a later delivery of the same
// alert replaces the earlier row.
func (r *Repository) Save(ctx context.Context, rec types.AlertRecord) error {
	row := alertFrom(rec)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("db: save alert %s: %w", rec.Identity, err)
	}
	return nil
}

// DeleteBefore removes records sent before cutoff.
func (r *Repository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("sent_at < ?", cutoff.UTC()).Delete(&AlertRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("db: delete alerts before %s: %w", cutoff.Format(time.RFC3339), res.Error)
	}
	return res.RowsAffected, nil
}

// ListAlerts returns records sent at or after since, newest first, at most
// limit of them.
func (r *Repository) ListAlerts(ctx context.Context, since time.Time, limit int) ([]types.AlertRecord, error) {
	var rows []AlertRecord
	q := r.db.WithContext(ctx).Order("sent_at DESC")
	if !since.IsZero() {
		q = q.Where("sent_at >= ?", since.UTC())
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("db: list alerts: %w", err)
	}
	out := make([]types.AlertRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toType())
	}
	return out, nil
}
