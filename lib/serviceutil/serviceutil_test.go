package serviceutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyAccessToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		token  string
		header string
		expect int
	}{
		{token: "", header: "", expect: http.StatusNoContent},
		{token: "secret", header: "", expect: http.StatusUnauthorized},
		{token: "secret", header: "Bearer wrong", expect: http.StatusUnauthorized},
		{token: "secret", header: "Bearer secret", expect: http.StatusNoContent},
	}

	for _, test := range cases {
		req := httptest.NewRequest(http.MethodGet, "/nga/post2/1", nil)
		if test.header != "" {
			req.Header.Set("Authorization", test.header)
		}
		rec := httptest.NewRecorder()
		VerifyAccessToken(test.token, ok).ServeHTTP(rec, req)
		require.Equal(t, test.expect, rec.Code)
	}
}
