package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		policy URLPolicy
		ok     bool
	}{
		{"local stream server", "http://localhost:8000", StreamServerPolicy, true},
		{"public stream server over http", "http://cards.example.com", StreamServerPolicy, true},
		{"model api over https", "https://api.openai.com/v1", ModelAPIPolicy, true},
		{"local model server over http", "http://127.0.0.1:11434/v1", ModelAPIPolicy, true},
		{"private network model server", "http://10.0.0.12:8080", ModelAPIPolicy, true},
		{"zoned link local", "http://[fe80::1%25eth0]:8080", ModelAPIPolicy, true},
		{"public model api over http", "http://api.example.com/v1", ModelAPIPolicy, false},
		{"local denied", "https://localhost", URLPolicy{}, false},
		{"mapped loopback denied", "https://[::ffff:127.0.0.1]", URLPolicy{}, false},
		{"unspecified address", "http://0.0.0.0:8000", StreamServerPolicy, false},
		{"no host", "http:///chat", StreamServerPolicy, false},
		{"bad scheme", "ftp://localhost", StreamServerPolicy, false},
		{"unparseable", "http://[::1", StreamServerPolicy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBaseURL(tt.url, tt.policy)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnsafeURL)
			}
		})
	}
}
