package validator

import (
	"errors"
	"testing"
)

func TestValidateOrigin(t *testing.T) {
	tests := []struct {
		name         string
		origin       string
		requireHTTPS bool
		opts         []Option
		wantErr      error
	}{
		{"https origin", "https://app.example.com", true, nil, nil},
		{"http origin in development", "http://localhost:3000", false, nil, nil},
		{"trailing slash", "https://app.example.com/", true, nil, nil},
		{"empty", "", false, nil, ErrInvalidOrigin},
		{"no host", "https://", false, nil, ErrInvalidOrigin},
		{"bad scheme", "ftp://files.example.com", false, nil, ErrInvalidOrigin},
		{"with path", "https://app.example.com/calendar", false, nil, ErrInvalidOrigin},
		{"with credentials", "https://user:pw@app.example.com", false, nil, ErrInvalidOrigin},
		{"http in production", "http://app.example.com", true, nil, ErrHTTPSRequired},
		{"loopback without option", "http://127.0.0.1:5173", true, nil, ErrHTTPSRequired},
		{"loopback with option", "http://127.0.0.1:5173", true, []Option{WithInsecureLocalhost()}, nil},
		{"localhost with option", "http://localhost:3000", true, []Option{WithInsecureLocalhost()}, nil},
		{"remote http with option", "http://app.example.com", true, []Option{WithInsecureLocalhost()}, ErrHTTPSRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.opts...).ValidateOrigin(tt.origin, tt.requireHTTPS)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateOrigin(%q) unexpected error: %v", tt.origin, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateOrigin(%q) error = %v, want %v", tt.origin, err, tt.wantErr)
			}
		})
	}
}
