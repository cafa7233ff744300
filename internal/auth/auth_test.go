package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMiddleware(t *testing.T) {
	var subject string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = Subject(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewAPIKeys("alpha", " ", "beta").Middleware(next)

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong", header: "Authorization", value: "Bearer nope", want: http.StatusUnauthorized},
		{name: "bearer", header: "Authorization", value: "Bearer alpha", want: http.StatusNoContent},
		{name: "lowercase scheme", header: "Authorization", value: "bearer beta", want: http.StatusNoContent},
		{name: "api key header", header: "X-API-Key", value: "beta", want: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			subject = ""
			req := httptest.NewRequest(http.MethodGet, "/tools", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusNoContent {
				assert.Len(t, subject, 8)
			} else {
				assert.Empty(t, subject)
			}
		})
	}
}

func TestDisabledAuthenticatorAllowsAll(t *testing.T) {
	a := NewAPIKeys()
	assert.False(t, a.Enabled())
	assert.True(t, a.Verify("anything"))

	rec := httptest.NewRecorder()
	a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var nilAuth *Authenticator
	assert.False(t, nilAuth.Enabled())
}
