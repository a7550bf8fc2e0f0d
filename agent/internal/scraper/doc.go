// Package scraper polls field gateways for soil sensor samples.
//
// A gateway exposes its sensors in the Prometheus text format: one family
// per parameter (soil_nitrogen, soil_ph, soil_temperature_celsius, ...) and
// one series per sensor_id label. Scrape groups the series into one
// types.SensorReading per sensor. An optional soil_reading_timestamp_seconds
// family carries the sensor's own sample time.
//
// Authentication (mTLS, API key, bearer token, basic) is handled by the
// authRoundTripper in base.go; New builds the *http.Client once per gateway.
package scraper
