// Package session vends a redis backed github.com/gorilla/sessions.Store. Clients only carry a signed session id,
// while session values stay in redis, so that signing out revokes a session for good.
package session

import (
	"context"
	"encoding/base32"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const (
	defaultKeyPrefix = "session."
	// how long sessions without MaxAge live in redis
	defaultTTL = 24 * time.Hour
)

// Redistore is a github.com/gorilla/sessions.Store
type Redistore struct {
	DB        *redis.Client
	Codecs    []securecookie.Codec
	Options   *sessions.Options
	KeyPrefix string
	encoder   securecookie.GobEncoder
}

// NewRedistore returns a Redistore signing session ids with given key pairs. See securecookie.CodecsFromPairs.
func NewRedistore(db *redis.Client, keyPairs ...[]byte) *Redistore {
	return &Redistore{
		DB:     db,
		Codecs: securecookie.CodecsFromPairs(keyPairs...),
		Options: &sessions.Options{
			Path:     "/",
			MaxAge:   86400 * 7,
			HttpOnly: true,
		},
		KeyPrefix: defaultKeyPrefix,
	}
}

// Get returns the session cached in the request registry, or loads it from redis.
func (s *Redistore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New returns the session named by name. A session which is missing, expired or carried by an undecodable
// cookie comes back new along with the decoding error if any.
func (s *Redistore) New(r *http.Request, name string) (*sessions.Session, error) {
	sess := sessions.NewSession(s, name)
	opts := *s.Options
	sess.Options = &opts
	sess.IsNew = true
	c, err := r.Cookie(name)
	if err != nil {
		return sess, nil
	}
	if err := securecookie.DecodeMulti(name, c.Value, &sess.ID, s.Codecs...); err != nil {
		sess.ID = ""
		return sess, err
	}
	found, err := s.load(r.Context(), sess)
	if err != nil {
		return sess, err
	}
	if !found {
		// revoked or expired; a fresh id is minted on save
		sess.ID = ""
	}
	sess.IsNew = !found
	return sess, nil
}

// Save persists sess to redis and sets its id cookie. A negative MaxAge deletes the session.
func (s *Redistore) Save(r *http.Request, w http.ResponseWriter, sess *sessions.Session) error {
	if sess.Options.MaxAge < 0 {
		if sess.ID != "" {
			if err := s.DB.WithContext(r.Context()).Del(s.key(sess.ID)).Err(); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(sess.Name(), "", sess.Options))
		return nil
	}
	if sess.ID == "" {
		sess.ID = strings.TrimRight(base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)), "=")
	}
	b, err := s.encoder.Serialize(sess.Values)
	if err != nil {
		return err
	}
	ttl := time.Duration(sess.Options.MaxAge) * time.Second
	if ttl == 0 {
		ttl = defaultTTL
	}
	if err := s.DB.WithContext(r.Context()).Set(s.key(sess.ID), b, ttl).Err(); err != nil {
		return err
	}
	encoded, err := securecookie.EncodeMulti(sess.Name(), sess.ID, s.Codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(sess.Name(), encoded, sess.Options))
	return nil
}

func (s *Redistore) load(ctx context.Context, sess *sessions.Session) (bool, error) {
	b, err := s.DB.WithContext(ctx).Get(s.key(sess.ID)).Bytes()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, s.encoder.Deserialize(b, &sess.Values)
}

func (s *Redistore) key(id string) string {
	return s.KeyPrefix + id
}
