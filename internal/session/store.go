package session

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Store persists session directories, credential records, and auth tokens
// in a fiber.Storage backend. Keys are namespaced by record kind so one
// backend can hold all three (spec §4.F storage layout: sessions/<sid>/,
// credentials/<v>.json, auth_tokens.json).
type Store struct {
	backend fiber.Storage
	ttl     time.Duration
}

// NewStore wraps backend (typically bbolt for production, memory for
// tests — see internal/web/server.go) with a default record TTL matching
// the auth timeout.
func NewStore(backend fiber.Storage, ttl time.Duration) *Store {
	return &Store{backend: backend, ttl: ttl}
}

// SessionRecord is the per-SID directory's persistent fields (spec §4.F
// "sessions/<sid>/... data.json").
type SessionRecord struct {
	SID          string    `json:"sid"`
	TmpCookieKey string    `json:"tmp_cookie_key"`
	AuthCookieKey string   `json:"auth_cookie_key"`
	CreatedAt    time.Time `json:"created_at"`
}

// Credential is the record stored at credentials/<v> by the login
// protocol (spec §4.F "Login protocol").
type Credential struct {
	Username string    `json:"un"`
	H2       string    `json:"h2"`
	SID      string    `json:"sid"`
	MTime    time.Time `json:"mtime"`
}

func (s *Store) sessionKey(sid string) string    { return "sessions/" + sid }
func (s *Store) credentialKey(v string) string   { return "credentials/" + v }
func (s *Store) authTokenKey(sid string) string  { return "auth_tokens/" + sid }

// SaveSession writes rec, refreshing its TTL.
func (s *Store) SaveSession(rec SessionRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return s.backend.Set(s.sessionKey(rec.SID), b, s.ttl)
}

// LoadSession reads the session directory for sid, returning ok=false if
// absent or expired.
func (s *Store) LoadSession(sid string) (SessionRecord, bool, error) {
	b, err := s.backend.Get(s.sessionKey(sid))
	if err != nil {
		return SessionRecord{}, false, err
	}

	if b == nil {
		return SessionRecord{}, false, nil
	}

	var rec SessionRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return SessionRecord{}, false, err
	}

	return rec, true, nil
}

// SaveCredential writes a credential record keyed by v.
func (s *Store) SaveCredential(v string, cred Credential) error {
	b, err := json.Marshal(cred)
	if err != nil {
		return err
	}

	return s.backend.Set(s.credentialKey(v), b, s.ttl)
}

// LoadCredential reads the credential record keyed by v.
func (s *Store) LoadCredential(v string) (Credential, bool, error) {
	b, err := s.backend.Get(s.credentialKey(v))
	if err != nil {
		return Credential{}, false, err
	}

	if b == nil {
		return Credential{}, false, nil
	}

	var cred Credential
	if err := json.Unmarshal(b, &cred); err != nil {
		return Credential{}, false, err
	}

	return cred, true, nil
}

// DeleteCredential removes the credential keyed by v (logout).
func (s *Store) DeleteCredential(v string) error {
	return s.backend.Delete(s.credentialKey(v))
}

// SaveAuthToken stores the current auth token for sid.
func (s *Store) SaveAuthToken(sid, token string) error {
	return s.backend.Set(s.authTokenKey(sid), []byte(token), s.ttl)
}

// LoadAuthToken reads sid's current auth token, if any.
func (s *Store) LoadAuthToken(sid string) (string, bool, error) {
	b, err := s.backend.Get(s.authTokenKey(sid))
	if err != nil {
		return "", false, err
	}

	if b == nil {
		return "", false, nil
	}

	return string(b), true, nil
}

// DeleteAuthToken removes sid's auth token; the first request after logout
// regenerates one (spec §4.F "Auth token").
func (s *Store) DeleteAuthToken(sid string) error {
	return s.backend.Delete(s.authTokenKey(sid))
}
