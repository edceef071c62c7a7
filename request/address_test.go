package request_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"isp-admission-service/request"
)

func TestClientAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		trustProxyHeaders bool
		headers           map[string]string
		expected          string
	}{
		{
			name:     "peer address by default",
			expected: "192.0.2.1:1234",
		},
		{
			name: "proxy headers ignored when untrusted",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.7",
				"X-Real-IP":       "203.0.113.8",
			},
			expected: "192.0.2.1:1234",
		},
		{
			name:              "first forwarded-for element wins",
			trustProxyHeaders: true,
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.7, 10.0.0.1, 10.0.0.2",
			},
			expected: "203.0.113.7",
		},
		{
			name:              "real-ip fallback",
			trustProxyHeaders: true,
			headers: map[string]string{
				"X-Real-IP": " 203.0.113.8 ",
			},
			expected: "203.0.113.8",
		},
		{
			name:              "peer address when no proxy headers",
			trustProxyHeaders: true,
			expected:          "192.0.2.1:1234",
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/pipeline/execute", nil)
			for name, value := range test.headers {
				req.Header.Set(name, value)
			}
			require.EqualValues(t, test.expected, request.ClientAddress(req, test.trustProxyHeaders))
		})
	}
}
