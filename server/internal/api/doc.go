// Package api implements the HTTP REST API for soilwatch-server.
//
// New(deps, middleware...) returns an http.Handler that serves:
//
//	GET  /api/v1/health               status, database reachability, live sensor count
//	POST /api/v1/readings             submit one reading; answers with the pipeline outcome
//	GET  /api/v1/sensors              all sensors with a live reading, plus diagnostics
//	GET  /api/v1/sensors/{id}/reading latest reading of one sensor; 404 if unknown or stale
//	POST /api/v1/sensors/{id}/check   re-run alerting on the latest reading
//	GET  /api/v1/alerts               delivered alerts, newest first (?since=, ?limit=)
//	GET  /metrics                     Prometheus exposition, when mounted
//	GET  /ws/alerts                   live alert stream, when mounted
//
// All JSON endpoints respond with Content-Type: application/json and use
// {"error": "..."} bodies for failures, including 404 and 405.
package api
