package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gestionale/pkg/requestcontext"
)

func TestClientIPWithoutProxies(t *testing.T) {
	cases := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{name: "forwarded chain is ignored", header: map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, remote: "9.9.9.9:1234", want: "9.9.9.9"},
		{name: "real ip header is ignored", header: map[string]string{"X-Real-IP": "5.6.7.8"}, remote: "9.9.9.9:1234", want: "9.9.9.9"},
		{name: "ipv4 remote addr", remote: "9.9.9.9:1234", want: "9.9.9.9"},
		{name: "ipv6 remote addr", remote: "[::1]:8080", want: "::1"},
		{name: "no remote addr", want: "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIPFromRequest(req))
		})
	}
}

func TestClientIPBehindTrustedProxy(t *testing.T) {
	resolver, err := NewClientIPResolver([]string{"10.0.0.0/8", "192.168.1.1"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		remote string
		xff    []string
		xri    string
		want   string
	}{
		{name: "single hop", remote: "10.0.0.2:80", xff: []string{"203.0.113.7"}, want: "203.0.113.7"},
		{name: "forged left hops are skipped", remote: "10.0.0.2:80", xff: []string{"6.6.6.6, 203.0.113.7"}, want: "203.0.113.7"},
		{name: "chain of trusted proxies", remote: "10.0.0.2:80", xff: []string{"203.0.113.7, 192.168.1.1, 10.1.1.1"}, want: "203.0.113.7"},
		{name: "repeated headers are joined", remote: "10.0.0.2:80", xff: []string{"6.6.6.6", "203.0.113.7"}, want: "203.0.113.7"},
		{name: "garbage stops the walk", remote: "10.0.0.2:80", xff: []string{"not-an-ip, 10.3.3.3"}, want: "10.3.3.3"},
		{name: "real ip from proxy", remote: "192.168.1.1:80", xri: "203.0.113.9", want: "203.0.113.9"},
		{name: "untrusted peer headers ignored", remote: "198.51.100.4:80", xff: []string{"203.0.113.7"}, want: "198.51.100.4"},
		{name: "no headers from proxy", remote: "10.0.0.2:80", want: "10.0.0.2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for _, v := range tc.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			if tc.xri != "" {
				req.Header.Set("X-Real-IP", tc.xri)
			}
			assert.Equal(t, tc.want, resolver.ClientIP(req))
		})
	}
}

func TestNewClientIPResolverRejectsGarbage(t *testing.T) {
	_, err := NewClientIPResolver([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = NewClientIPResolver([]string{"proxy.internal"})
	assert.Error(t, err)
}

func TestClientMetadata(t *testing.T) {
	var ip, ua string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:5555"
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("X-Forwarded-For", "1.1.1.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "192.168.1.5", ip)
	assert.Equal(t, "Mozilla/5.0", ua)
}
