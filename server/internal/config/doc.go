// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - GRPCPort, HTTPPort     listener ports (defaults 50051 / 8080)
//   - Auth.Mode/KeyEnv       "apikey" or "none"; key resolved from the environment
//   - Readings.TTL           lifetime of a sensor's latest reading (default 24h)
//   - Catalog.CacheTTL       stage threshold cache lifetime (default 5m)
//   - Alerts.*               suppression window (1h), message limit (320),
//     send timeout (10s), eligible roles, timezone, record retention
//   - Storage.Driver         "sqlite" (default) or "postgres" via DSNEnv
//   - SMS, MQTT, Kafka       optional collaborators, disabled when unset
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) re-loads the file on every write.
package config
