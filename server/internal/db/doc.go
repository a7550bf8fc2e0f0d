// Package db is the relational store behind the alerting engine.
//
// It holds four collections: the plant registry (sensor bindings and current
// stage), the stage-definition catalog, the user directory used to pick SMS
// recipients, and delivered alert records. Postgres is used in production and
// SQLite for local runs and tests; both are reached through gorm.
//
// Repository satisfies the lookup interfaces of the alerts package. Missing
// rows are reported as (nil, nil), never as errors.
package db
