package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/soilwatch/soilwatch/agent/internal/config"
	"github.com/soilwatch/soilwatch/pkg/types"
)

const (
	// metricPrefix marks sensor parameter families, e.g. soil_nitrogen.
	metricPrefix = "soil_"

	// sensorLabel identifies the sensor a series belongs to.
	sensorLabel = "sensor_id"

	// timestampFamily carries the sensor's own sample time in unix seconds.
	timestampFamily = "soil_reading_timestamp_seconds"
)

// unitSuffixes are stripped from family names so that
// soil_temperature_celsius reports as "temperature".
var unitSuffixes = []string{
	"_celsius",
	"_percent",
	"_ratio",
	"_mg_per_kg",
	"_microsiemens_per_cm",
}

type gatewayScraper struct {
	gw     config.Gateway
	client *http.Client
	now    func() time.Time
}

// Scrape fetches the gateway's metrics endpoint and groups every soil_*
// series by its sensor_id label into one reading per sensor.
func (s *gatewayScraper) Scrape(ctx context.Context) (*ScrapeResult, error) {
	res := &ScrapeResult{GatewayID: s.gw.ID, ScrapedAt: s.now().UTC()}

	mfs, err := fetchMetrics(ctx, s.client, s.gw.Endpoint)
	if err != nil {
		res.Err = fmt.Errorf("gateway scrape %q: %w", s.gw.ID, err)
		slog.Warn("scraper: gateway fetch failed", "gateway", s.gw.ID, "err", err)
		return res, nil
	}

	res.Readings = readingsFrom(mfs, res.ScrapedAt)
	return res, nil
}

// readingsFrom converts metric families into per-sensor readings. A sensor's
// timestamp is taken from soil_reading_timestamp_seconds, then from the
// newest explicit sample timestamp, then from scrapedAt.
func readingsFrom(mfs map[string]*dto.MetricFamily, scrapedAt time.Time) []types.SensorReading {
	explicit := make(map[string]time.Time)
	for _, m := range mfs[timestampFamily].GetMetric() {
		id := strings.TrimSpace(labelValue(m, sensorLabel))
		if v, ok := valueOf(m); ok && id != "" && v > 0 && !math.IsInf(v, 0) {
			explicit[id] = time.Unix(0, int64(v*float64(time.Second))).UTC()
		}
	}

	bySensor := make(map[string]*types.SensorReading)
	for name, mf := range mfs {
		if !strings.HasPrefix(name, metricPrefix) || name == timestampFamily {
			continue
		}
		param := parameterName(name)
		for _, m := range mf.GetMetric() {
			id := strings.TrimSpace(labelValue(m, sensorLabel))
			if id == "" {
				continue
			}
			v, ok := valueOf(m)
			if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			r, ok := bySensor[id]
			if !ok {
				r = &types.SensorReading{SensorID: id, Parameters: make(map[string]float64)}
				bySensor[id] = r
			}
			r.Parameters[param] = v
			if ms := m.GetTimestampMs(); ms > 0 {
				if t := time.UnixMilli(ms).UTC(); t.After(r.Timestamp) {
					r.Timestamp = t
				}
			}
		}
	}

	out := make([]types.SensorReading, 0, len(bySensor))
	for id, r := range bySensor {
		if t, ok := explicit[id]; ok {
			r.Timestamp = t
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = scrapedAt
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}

func parameterName(family string) string {
	p := strings.TrimPrefix(family, metricPrefix)
	for _, suf := range unitSuffixes {
		if strings.HasSuffix(p, suf) {
			return strings.TrimSuffix(p, suf)
		}
	}
	return p
}
