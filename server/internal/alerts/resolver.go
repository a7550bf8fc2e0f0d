package alerts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/soilwatch/soilwatch/pkg/types"
	"github.com/soilwatch/soilwatch/server/internal/metrics"
)

// ErrNotFound reports that no threshold set applies to a plant: its type or
// stage is missing, or the catalog has no matching entry.
var ErrNotFound = errors.New("thresholds not found")

// Catalog reads the stage-definition catalog. PlantType returns (nil, nil)
// when key is not in the catalog.
type Catalog interface {
	PlantType(ctx context.Context, key string) (*types.CatalogEntry, error)
}

type stageKey struct {
	plantType string
	stage     string
}

// Resolver maps a plant to the thresholds of its current stage. Resolved sets
// are cached per (plant type, stage); the catalog stays the authority and is
// read on every miss.
//
// Returned Bounds maps are shared with the cache and must not be modified.
type Resolver struct {
	catalog Catalog
	cache   *ttlCache[stageKey, types.StageThresholds]
}

// NewResolver creates a Resolver caching entries for ttl. A nil now uses time.Now.
func NewResolver(c Catalog, ttl time.Duration, now func() time.Time) *Resolver {
	return &Resolver{
		catalog: c,
		cache:   newTTLCache[stageKey, types.StageThresholds](ttl, now),
	}
}

// NormalizePlantType returns the catalog key for a plant type: trimmed,
// lower-cased, inner whitespace collapsed to a single underscore.
func NormalizePlantType(t string) string {
	return strings.Join(strings.Fields(strings.ToLower(t)), "_")
}

// Resolve returns the thresholds for plant's current stage, or an error
// wrapping ErrNotFound when none apply. Other errors are catalog read failures.
func (r *Resolver) Resolve(ctx context.Context, plant types.Plant) (types.StageThresholds, error) {
	typeKey := NormalizePlantType(plant.PlantType)
	stage := strings.TrimSpace(plant.Status)
	if typeKey == "" {
		return types.StageThresholds{}, fmt.Errorf("%w: plant %q has no type", ErrNotFound, plant.ID)
	}
	if stage == "" {
		return types.StageThresholds{}, fmt.Errorf("%w: plant %q has no stage", ErrNotFound, plant.ID)
	}

	key := stageKey{plantType: typeKey, stage: strings.ToLower(stage)}
	if th, ok := r.cache.Get(key); ok {
		metrics.CatalogCache.WithLabelValues("hit").Inc()
		return th, nil
	}
	metrics.CatalogCache.WithLabelValues("miss").Inc()

	entry, err := r.catalog.PlantType(ctx, typeKey)
	if err != nil {
		return types.StageThresholds{}, fmt.Errorf("read catalog %q: %w", typeKey, err)
	}
	if entry == nil {
		return types.StageThresholds{}, fmt.Errorf("%w: plant type %q not in catalog", ErrNotFound, typeKey)
	}

	for _, s := range entry.Stages {
		if strings.EqualFold(strings.TrimSpace(s.Stage), stage) {
			th := thresholdsFor(typeKey, entry, s)
			r.cache.Set(key, th)
			return th, nil
		}
	}
	return types.StageThresholds{}, fmt.Errorf("%w: stage %q not defined for %q", ErrNotFound, stage, typeKey)
}

// Purge drops expired cache entries.
func (r *Resolver) Purge() int {
	return r.cache.Purge()
}

// thresholdsFor converts one catalog stage into a threshold set. A parameter
// is bounded only when both of its bounds parse and low <= high.
func thresholdsFor(typeKey string, entry *types.CatalogEntry, s types.CatalogStage) types.StageThresholds {
	th := types.StageThresholds{
		PlantType:      typeKey,
		PlantName:      entry.Name,
		ScientificName: entry.ScientificName,
		Stage:          strings.TrimSpace(s.Stage),
		Bounds:         make(map[string]types.Bound, 6),
	}
	for _, f := range []struct {
		param     string
		low, high string
	}{
		{types.Nitrogen, s.LowN, s.HighN},
		{types.Phosphorus, s.LowP, s.HighP},
		{types.Potassium, s.LowK, s.HighK},
		{types.PH, s.LowPH, s.HighPH},
		{types.Temperature, s.LowTemp, s.HighTemp},
		{types.Humidity, s.LowHum, s.HighHum},
	} {
		lo, okLo := parseBound(f.low)
		hi, okHi := parseBound(f.high)
		if !okLo || !okHi || lo > hi {
			continue
		}
		th.Bounds[f.param] = types.Bound{Min: lo, Max: hi, Unit: units[f.param]}
	}
	return th
}

func parseBound(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
