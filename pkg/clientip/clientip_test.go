package clientip_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stepstudio/stepstudio/pkg/clientip"
)

func TestGetIP(t *testing.T) {
	t.Parallel()

	t.Run("remote addr fallback", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "203.0.113.7:54321"
		assert.Equal(t, "203.0.113.7", clientip.GetIP(r))
	})

	t.Run("x-forwarded-for first valid ip wins", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "10.0.0.1:443"
		r.Header.Set("X-Forwarded-For", "198.51.100.23, 10.0.0.2")
		assert.Equal(t, "198.51.100.23", clientip.GetIP(r))
	})

	t.Run("x-forwarded-for skips garbage entries", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "10.0.0.1:443"
		r.Header.Set("X-Forwarded-For", "not-an-ip, 198.51.100.23")
		assert.Equal(t, "198.51.100.23", clientip.GetIP(r))
	})

	t.Run("x-real-ip used when no forwarded header", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "10.0.0.1:443"
		r.Header.Set("X-Real-IP", "192.0.2.44")
		assert.Equal(t, "192.0.2.44", clientip.GetIP(r))
	})

	t.Run("ipv6 normalized", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "[2001:db8::1]:443"
		assert.Equal(t, "2001:db8::1", clientip.GetIP(r))
	})
}
