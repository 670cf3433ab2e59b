package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentra-auth/sentra/internal/shared"
)

type countingRecorder struct{ failures int }

func (c *countingRecorder) RecordAuthFailure() { c.failures++ }

func echoIdentity() (http.Handler, *[]*shared.Identity) {
	var seen []*shared.Identity
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, shared.IdentityFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
	return handler, &seen
}

func TestMiddlewareAttachesIdentity(t *testing.T) {
	service, dir, _ := newAuthFixture()
	dir.add(testUser("u1", "a@example.com", true))
	pair, err := service.Login(context.Background(), "a@example.com", testPassword)
	require.NoError(t, err)

	authn := Authenticator{Service: service}
	next, seen := echoIdentity()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	authn.Middleware(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, *seen, 1)
	require.NotNil(t, (*seen)[0])
	require.Equal(t, "u1", (*seen)[0].User.ID)
}

func TestMiddlewareNeverRejects(t *testing.T) {
	service, _, _ := newAuthFixture()
	recorder := &countingRecorder{}
	authn := Authenticator{Service: service, Metrics: recorder}
	next, seen := echoIdentity()

	// No header at all.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	authn.Middleware(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Worthless token still reaches the handler, anonymously.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	authn.Middleware(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, *seen, 2)
	require.Nil(t, (*seen)[0])
	require.Nil(t, (*seen)[1])
	require.Equal(t, 1, recorder.failures)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	require.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	require.Equal(t, "abc.def.ghi", bearerToken(req))
}
