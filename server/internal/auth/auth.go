package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// enabled reports whether API key checks apply.
func enabled(mode, key string) bool {
	return mode == "apikey" && key != ""
}

func keyMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// APIKeyInterceptor returns a gRPC UnaryServerInterceptor that enforces API key
// authentication on every incoming call.
//
// Behaviour:
//   - If mode != "apikey" or key == "", all calls are allowed (pass-through).
//   - Otherwise the interceptor reads the value of header from the incoming
//     gRPC metadata and compares it to key.
//   - A missing, empty, or incorrect key returns codes.Unauthenticated.
//
// header should be lowercase; gRPC normalises metadata keys to lowercase.
func APIKeyInterceptor(mode, header, key string) grpc.UnaryServerInterceptor {
	header = strings.ToLower(header)
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !enabled(mode, key) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		vals := md.Get(header)
		if len(vals) == 0 || !keyMatches(vals[0], key) {
			return nil, status.Error(codes.Unauthenticated, "invalid api key")
		}

		return handler(ctx, req)
	}
}

// QueryParam carries the API key on paths listed in Paths.Query.
const QueryParam = "api_key"

// Paths lists the HTTP paths that APIKeyMiddleware treats specially.
type Paths struct {
	// Open paths skip the check (health and metrics probes).
	Open []string
	// Query paths also accept the key as ?api_key=. Browsers cannot set
	// headers on a websocket upgrade.
	Query []string
}

// APIKeyMiddleware is the HTTP counterpart of APIKeyInterceptor.
// Rejections are answered with 401 and a JSON error body.
func APIKeyMiddleware(mode, header, key string, p Paths) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(p.Open))
	for _, path := range p.Open {
		open[path] = true
	}
	query := make(map[string]bool, len(p.Query))
	for _, path := range p.Query {
		query[path] = true
	}
	return func(next http.Handler) http.Handler {
		if !enabled(mode, key) {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if open[path] || keyMatches(r.Header.Get(header), key) ||
				(query[path] && keyMatches(r.URL.Query().Get(QueryParam), key)) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid api key"}` + "\n")) //nolint:errcheck
		})
	}
}
