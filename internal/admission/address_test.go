package admission

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceAddress(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{name: "first forwarded entry", xff: "203.0.113.9, 10.0.0.1, 10.0.0.2", remoteAddr: "10.0.0.3:4000", want: "203.0.113.9"},
		{name: "forwarded entry is trimmed", xff: "  198.51.100.4  ", remoteAddr: "10.0.0.3:4000", want: "198.51.100.4"},
		{name: "empty first entry falls back", xff: " , 10.0.0.1", remoteAddr: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "remote addr host", remoteAddr: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "ipv6 remote addr", remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "remote addr without port", remoteAddr: "192.0.2.7", want: "192.0.2.7"},
		{name: "nothing available", remoteAddr: "", want: UnknownSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/proxy", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, SourceAddress(req))
		})
	}
}
