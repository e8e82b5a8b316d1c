package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filedownloader/internal/apperr"
)

func TestValidate(t *testing.T) {
	restricted := NewValidator([]string{"example.com", " .CDN.net "})
	open := NewValidator(nil)

	tests := []struct {
		name      string
		validator *Validator
		url       string
		wantKind  apperr.Kind
	}{
		{"exact host", restricted, "https://example.com/a.pdf", ""},
		{"subdomain", restricted, "http://img.example.com/a.png", ""},
		{"uppercase host", restricted, "https://IMG.Example.COM/a.png", ""},
		{"normalized entry", restricted, "https://static.cdn.net/x", ""},
		{"suffix without dot", restricted, "https://badexample.com/a.pdf", apperr.KindHostNotAllowed},
		{"other host", restricted, "https://evil.org/a.pdf", apperr.KindHostNotAllowed},
		{"open list", open, "https://anything.io/x", ""},
		{"ftp scheme", open, "ftp://example.com/file.txt", apperr.KindSchemeNotAllowed},
		{"file scheme", open, "file:///etc/passwd", apperr.KindSchemeNotAllowed},
		{"relative", open, "/just/a/path", apperr.KindInvalidURL},
		{"empty", open, "   ", apperr.KindInvalidURL},
		{"malformed", open, "http://[::1", apperr.KindInvalidURL},
		{"no host", open, "http:///path", apperr.KindInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := tt.validator.Validate(tt.url)
			if tt.wantKind == "" {
				require.NoError(t, err)
				assert.NotNil(t, u)
				return
			}
			require.Error(t, err)
			assert.Nil(t, u)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}
