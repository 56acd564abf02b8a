package clientip

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRealClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.7:54321"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")

	assert.Equal(t, "10.0.0.7", RealClientIP(r, false))
	assert.Equal(t, "1.2.3.4", RealClientIP(r, true))

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-IP", "5.6.7.8")
	assert.Equal(t, "5.6.7.8", RealClientIP(r, true))

	r.RemoteAddr = "no-port"
	assert.Equal(t, "no-port", RealClientIP(r, false))
}
