// Package auth provides API key authentication for soilwatch-server.
//
// APIKeyInterceptor(mode, header, key) guards the gRPC ingestion service and
// APIKeyMiddleware(mode, header, key, paths) guards the HTTP API. Both read
// the key from the named header and compare it in constant time. Paths.Query
// routes, such as the websocket feed, also take it from ?api_key=.
//
// When mode != "apikey" or key == "", everything passes through (useful for
// local development with auth disabled). An incorrect or absent key yields
// codes.Unauthenticated (gRPC) or 401 (HTTP).
package auth
