package csrf

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPair(t *testing.T) {
	pair := NewPair()

	assert.Regexp(t, regexp.MustCompile(`^csrf_name_[a-z0-9]{10}$`), pair.Name)
	assert.Regexp(t, regexp.MustCompile(`^csrf_value_[a-z0-9]{50}$`), pair.Value)
	assert.NotEqual(t, pair, NewPair())
}

func TestGenerator_Apply(t *testing.T) {
	jar := NewJar()
	gen := NewGenerator(10 * time.Second)

	req := httptest.NewRequest(http.MethodPost, "http://chat.local/messages", nil)
	pair := gen.Apply(req, jar)

	assert.Equal(t, pair.Name, req.Header.Get(HeaderName))
	assert.Equal(t, pair.Value, req.Header.Get(HeaderToken))

	cookies := jar.Cookies(req.URL)
	require.Len(t, cookies, 1)
	assert.Equal(t, pair.Name, cookies[0].Name)
	assert.Equal(t, pair.Value, cookies[0].Value)
}

func TestGenerator_ExpiredCookieIsNotSent(t *testing.T) {
	jar := NewJar()
	gen := NewGenerator(10 * time.Second)
	gen.clock = func() time.Time { return time.Now().Add(-time.Minute) }

	req := httptest.NewRequest(http.MethodPost, "http://chat.local/logout", nil)
	gen.Apply(req, jar)

	assert.Empty(t, jar.Cookies(req.URL))
}

func TestValidate(t *testing.T) {
	pair := NewPair()

	tests := []struct {
		name    string
		prepare func(*http.Request)
		wantErr error
	}{
		{
			name: "matching pair",
			prepare: func(r *http.Request) {
				r.Header.Set(HeaderName, pair.Name)
				r.Header.Set(HeaderToken, pair.Value)
				r.AddCookie(&http.Cookie{Name: pair.Name, Value: pair.Value})
			},
		},
		{
			name:    "no headers",
			prepare: func(r *http.Request) {},
			wantErr: ErrMissingHeaders,
		},
		{
			name: "foreign cookie name",
			prepare: func(r *http.Request) {
				r.Header.Set(HeaderName, "session")
				r.Header.Set(HeaderToken, pair.Value)
				r.AddCookie(&http.Cookie{Name: "session", Value: pair.Value})
			},
			wantErr: ErrMissingHeaders,
		},
		{
			name: "no cookie",
			prepare: func(r *http.Request) {
				r.Header.Set(HeaderName, pair.Name)
				r.Header.Set(HeaderToken, pair.Value)
			},
			wantErr: ErrMissingCookie,
		},
		{
			name: "mismatch",
			prepare: func(r *http.Request) {
				r.Header.Set(HeaderName, pair.Name)
				r.Header.Set(HeaderToken, "csrf_value_other")
				r.AddCookie(&http.Cookie{Name: pair.Name, Value: pair.Value})
			},
			wantErr: ErrTokenMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/messages", nil)
			tt.prepare(req)

			err := Validate(req)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
