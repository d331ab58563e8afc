package utils

import "testing"

func TestIsAllowedOrigin(t *testing.T) {
	tests := []struct {
		origin  string
		allowed bool
	}{
		// Loopback and LAN names
		{"http://localhost", true},
		{"https://localhost:3000", true},
		{"http://127.0.0.1:8000", true},
		{"http://[::1]:8000", true},
		{"http://dvr.local", true},
		{"http://dvr.local:8000", true},
		{"http://mediaserver:8000", true},

		// Private and link-local addresses
		{"http://192.168.1.50", true},
		{"http://192.168.1.50:8000", true},
		{"http://10.0.0.7", true},
		{"http://172.16.0.1", true},
		{"http://172.31.255.255:443", true},
		{"http://169.254.1.1", true},
		{"http://[fd00::1]", true},
		{"http://[fe80::1]", true},

		// Public origins
		{"http://example.com", false},
		{"https://guide-cdn.example.com", false},
		{"http://dvr.local.evil.com", false},
		{"http://8.8.8.8", false},
		{"http://[2001:4860:4860::8888]", false},

		// Empty or not an origin at all
		{"", false},
		{"not-a-url", false},
	}

	for _, tt := range tests {
		if got := IsAllowedOrigin(tt.origin); got != tt.allowed {
			t.Errorf("IsAllowedOrigin(%q) = %v, want %v", tt.origin, got, tt.allowed)
		}
	}
}
