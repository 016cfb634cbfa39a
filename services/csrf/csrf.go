package csrf

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/labstack/gommon/random"
)

const (
	HeaderName  = "X-CSRF-Name"
	HeaderToken = "X-CSRF-Token"

	namePrefix  = "csrf_name_"
	valuePrefix = "csrf_value_"
	nameLength  = 10
	valueLength = 50
	charset     = random.Lowercase + random.Numeric
)

var (
	ErrMissingHeaders = errors.New("CSRF headers missing")
	ErrMissingCookie  = errors.New("CSRF cookie missing")
	ErrTokenMismatch  = errors.New("CSRF token mismatch")
)

// Pair is one double-submit token: a cookie named Name holding Value, echoed
// in the X-CSRF-Name / X-CSRF-Token headers.
type Pair struct {
	Name  string
	Value string
}

func NewPair() Pair {
	return Pair{
		Name:  namePrefix + random.String(nameLength, charset),
		Value: valuePrefix + random.String(valueLength, charset),
	}
}

type Generator struct {
	ttl   time.Duration
	clock func() time.Time
}

func NewGenerator(ttl time.Duration) *Generator {
	return &Generator{ttl: ttl, clock: time.Now}
}

// Apply stores a fresh pair as a short-lived cookie for req's origin and sets
// the matching headers on req.
func (g *Generator) Apply(req *http.Request, jar http.CookieJar) Pair {
	pair := NewPair()

	if jar != nil {
		jar.SetCookies(req.URL, []*http.Cookie{{
			Name:    pair.Name,
			Value:   pair.Value,
			Path:    "/",
			Expires: g.clock().Add(g.ttl),
		}})
	}

	req.Header.Set(HeaderName, pair.Name)
	req.Header.Set(HeaderToken, pair.Value)
	return pair
}

// Validate is the receiving side of the double-submit check.
func Validate(req *http.Request) error {
	name := req.Header.Get(HeaderName)
	token := req.Header.Get(HeaderToken)
	if name == "" || token == "" || !strings.HasPrefix(name, namePrefix) {
		return ErrMissingHeaders
	}

	cookie, err := req.Cookie(name)
	if err != nil {
		return ErrMissingCookie
	}

	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(token)) != 1 {
		return ErrTokenMismatch
	}
	return nil
}

// NewJar is the credential store shared by every gateway request.
func NewJar() http.CookieJar {
	jar, _ := cookiejar.New(nil)
	return jar
}
