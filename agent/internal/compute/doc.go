// Package compute decides which scraped readings leave the agent.
//
// Engine remembers the last shipped parameters of every sensor. A reading is
// shipped when its sensor is new, when any parameter value or the parameter
// set changed, or when the heartbeat interval has passed since the sensor was
// last shipped. It also tracks a rolling uptime % per gateway over the last
// 20 scrapes (up, degraded below 90%, down on a failed scrape).
// Process accepts an injectable time.Time so tests are deterministic.
package compute
