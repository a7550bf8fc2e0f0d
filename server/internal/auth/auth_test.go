package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// passHandler is a grpc.UnaryHandler that returns ("ok", nil).
func passHandler(ctx context.Context, req interface{}) (interface{}, error) {
	return "ok", nil
}

func callWithKey(t *testing.T, interceptor grpc.UnaryServerInterceptor, header, key string) (interface{}, error) {
	t.Helper()
	ctx := context.Background()
	if key != "" {
		md := metadata.Pairs(header, key)
		ctx = metadata.NewIncomingContext(ctx, md)
	}
	return interceptor(ctx, nil, &grpc.UnaryServerInfo{}, passHandler)
}

func TestAPIKeyInterceptor_PassThrough(t *testing.T) {
	cases := map[string]grpc.UnaryServerInterceptor{
		"mode none": APIKeyInterceptor("none", "x-api-key", "secret"),
		"empty key": APIKeyInterceptor("apikey", "x-api-key", ""),
	}
	for name, i := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := i(context.Background(), nil, &grpc.UnaryServerInfo{}, passHandler)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res != "ok" {
				t.Errorf("result: got %v, want ok", res)
			}
		})
	}
}

func TestAPIKeyInterceptor_CorrectKey(t *testing.T) {
	i := APIKeyInterceptor("apikey", "X-Api-Key", "secret")
	res, err := callWithKey(t, i, "x-api-key", "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != "ok" {
		t.Errorf("result: got %v, want ok", res)
	}
}

func TestAPIKeyInterceptor_Rejects(t *testing.T) {
	i := APIKeyInterceptor("apikey", "x-api-key", "secret")

	if _, err := callWithKey(t, i, "x-api-key", "wrong"); status.Code(err) != codes.Unauthenticated {
		t.Errorf("wrong key: got %v, want Unauthenticated", err)
	}
	if _, err := callWithKey(t, i, "", ""); status.Code(err) != codes.Unauthenticated {
		t.Errorf("no metadata: got %v, want Unauthenticated", err)
	}
	if _, err := callWithKey(t, i, "authorization", "secret"); status.Code(err) != codes.Unauthenticated {
		t.Errorf("wrong header: got %v, want Unauthenticated", err)
	}
}

func serve(h http.Handler, path, key string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set("X-Api-Key", key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestAPIKeyMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := APIKeyMiddleware("apikey", "x-api-key", "secret", Paths{Open: []string{"/api/v1/health"}})(ok)

	cases := []struct {
		name, path, key string
		want            int
	}{
		{"correct key", "/api/v1/alerts", "secret", http.StatusNoContent},
		{"wrong key", "/api/v1/alerts", "nope", http.StatusUnauthorized},
		{"missing key", "/api/v1/alerts", "", http.StatusUnauthorized},
		{"open path", "/api/v1/health", "", http.StatusNoContent},
	}
	for _, c := range cases {
		if got := serve(h, c.path, c.key); got != c.want {
			t.Errorf("%s: got %d, want %d", c.name, got, c.want)
		}
	}
}

func TestAPIKeyMiddleware_Disabled(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := APIKeyMiddleware("none", "x-api-key", "secret", Paths{})(ok)
	if got := serve(h, "/api/v1/alerts", ""); got != http.StatusNoContent {
		t.Errorf("disabled: got %d, want 204", got)
	}
}

func TestAPIKeyMiddleware_QueryKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := APIKeyMiddleware("apikey", "x-api-key", "secret", Paths{Query: []string{"/ws/alerts"}})(ok)

	cases := []struct {
		name, target string
		want         int
	}{
		{"query key on ws path", "/ws/alerts?api_key=secret", http.StatusNoContent},
		{"wrong query key", "/ws/alerts?api_key=nope", http.StatusUnauthorized},
		{"no key on ws path", "/ws/alerts", http.StatusUnauthorized},
		{"query key elsewhere", "/api/v1/alerts?api_key=secret", http.StatusUnauthorized},
	}
	for _, c := range cases {
		if got := serve(h, c.target, ""); got != c.want {
			t.Errorf("%s: got %d, want %d", c.name, got, c.want)
		}
	}
	if got := serve(h, "/ws/alerts", "secret"); got != http.StatusNoContent {
		t.Errorf("header key on ws path: got %d, want 204", got)
	}
}
