// Package identity vends who is calling. Sessions are issued by the identity provider at sign in; services only
// read them and sign users out.
package identity

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"
	log "github.com/sirupsen/logrus"
	pe "wuyrush.io/pinboard/errors"
	"wuyrush.io/pinboard/stores/session"
)

const (
	sessionName       = "pinboard"
	tokenCookieName   = "token"
	keyUserID         = "userId"
	keyUsername       = "username"
	defaultSessionTTL = 7 * 24 * time.Hour
)

// Session identifies the signed-in user of a request
type Session struct {
	UserID   string
	Username string
}

// Provider resolves sessions of incoming requests
type Provider interface {
	// Current returns the session carried by r, or nil for anonymous requests. Broken or expired credentials
	// count as anonymous.
	Current(r *http.Request) *Session
	// Issue attaches a session for s to the response
	Issue(w http.ResponseWriter, r *http.Request, s *Session) *pe.PinErr
	SignOut(w http.ResponseWriter, r *http.Request) *pe.PinErr
}

// UserID returns id of the signed-in user of r, or "" for anonymous requests
func UserID(p Provider, r *http.Request) string {
	if s := p.Current(r); s != nil {
		return s.UserID
	}
	return ""
}

// CookieProvider keeps sessions in signed cookies through gorilla sessions
type CookieProvider struct {
	Store sessions.Store
}

func NewCookieProvider(secret []byte, secure bool) *CookieProvider {
	cs := sessions.NewCookieStore(secret)
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(defaultSessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
	}
	return &CookieProvider{Store: cs}
}

// NewRedisProvider keeps session values in redis, and only a signed session id in the cookie. Signing out revokes
// the session server side.
func NewRedisProvider(db *redis.Client, secret []byte, secure bool) *CookieProvider {
	rs := session.NewRedistore(db, secret)
	rs.Options.MaxAge = int(defaultSessionTTL.Seconds())
	rs.Options.Secure = secure
	return &CookieProvider{Store: rs}
}

func (p *CookieProvider) Current(r *http.Request) *Session {
	sess, err := p.Store.Get(r, sessionName)
	if err != nil {
		log.WithError(err).Debug("discarding undecodable session cookie")
		return nil
	}
	uid, _ := sess.Values[keyUserID].(string)
	if uid == "" {
		return nil
	}
	uname, _ := sess.Values[keyUsername].(string)
	return &Session{UserID: uid, Username: uname}
}

func (p *CookieProvider) Issue(w http.ResponseWriter, r *http.Request, s *Session) *pe.PinErr {
	// a broken cookie still yields a fresh session to overwrite it with
	sess, _ := p.Store.Get(r, sessionName)
	sess.Values[keyUserID] = s.UserID
	sess.Values[keyUsername] = s.Username
	if err := sess.Save(r, w); err != nil {
		return pe.NewServiceFailure("error saving session").WithCause(err)
	}
	return nil
}

func (p *CookieProvider) SignOut(w http.ResponseWriter, r *http.Request) *pe.PinErr {
	sess, _ := p.Store.Get(r, sessionName)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return pe.NewServiceFailure("error clearing session").WithCause(err)
	}
	return nil
}

type claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTProvider carries sessions as HS256 signed tokens, either in the token cookie or as bearer token
type JWTProvider struct {
	Secret []byte
	TTL    time.Duration
	Secure bool
	Now    func() time.Time
}

func NewJWTProvider(secret []byte, secure bool) *JWTProvider {
	return &JWTProvider{Secret: secret, TTL: defaultSessionTTL, Secure: secure, Now: time.Now}
}

func (p *JWTProvider) Current(r *http.Request) *Session {
	tok := bearerToken(r)
	if tok == "" {
		c, err := r.Cookie(tokenCookieName)
		if err != nil {
			return nil
		}
		tok = c.Value
	}
	var cl claims
	token, err := jwt.ParseWithClaims(tok, &cl, func(t *jwt.Token) (interface{}, error) {
		return p.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.Now))
	if err != nil || !token.Valid || cl.UserID == "" {
		log.WithError(err).Debug("discarding invalid session token")
		return nil
	}
	return &Session{UserID: cl.UserID, Username: cl.Username}
}

// Token signs a session token for s
func (p *JWTProvider) Token(s *Session) (string, *pe.PinErr) {
	now := p.Now()
	cl := claims{
		UserID:   s.UserID,
		Username: s.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.TTL)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(p.Secret)
	if err != nil {
		return "", pe.NewServiceFailure("error signing session token").WithCause(err)
	}
	return tok, nil
}

func (p *JWTProvider) Issue(w http.ResponseWriter, r *http.Request, s *Session) *pe.PinErr {
	tok, perr := p.Token(s)
	if perr != nil {
		return perr
	}
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(p.TTL.Seconds()),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (p *JWTProvider) SignOut(w http.ResponseWriter, r *http.Request) *pe.PinErr {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
