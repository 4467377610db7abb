package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmcleod/lockbox/crypto"
	"github.com/jmcleod/lockbox/internal/util"
	"github.com/jmcleod/lockbox/storage"
)

const (
	// DefaultSessionTTL is the absolute lifetime of a session. The TTL is
	// fixed at creation; using a session does not extend it.
	DefaultSessionTTL = 5 * time.Minute
	// DefaultSweepInterval is how often the background sweep scans for
	// expired sessions.
	DefaultSweepInterval = 5 * time.Second

	sessionTokenBytes  = 32
	sessionSealAAD     = "session:"
	sessionSealKeyInfo = "lockbox:session-seal:v1"
)

// SessionManager owns the lifecycle of sessions stored at sessions/{sid}.
// When given a seal secret, session documents are encrypted at rest so a
// store dump alone does not expose cached derived keys.
type SessionManager struct {
	store   storage.Store
	ttl     time.Duration
	sealKey []byte
	logger  *slog.Logger
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithTTL overrides the default session TTL.
func WithTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) {
		m.ttl = ttl
	}
}

// WithSealSecret derives an at-rest encryption key for session documents
// from the given secret. Without it, sessions are stored as plain JSON.
func WithSealSecret(secret []byte) SessionOption {
	return func(m *SessionManager) {
		key, err := util.HKDF(secret, nil, []byte(sessionSealKeyInfo))
		if err != nil {
			// HKDF over a non-empty secret cannot fail; guard anyway.
			panic(fmt.Sprintf("deriving session seal key: %v", err))
		}
		m.sealKey = key
	}
}

// WithSessionLogger sets the structured logger for sweep activity.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(m *SessionManager) {
		m.logger = logger.With("component", "sessions")
	}
}

// NewSessionManager creates a SessionManager over the given store.
func NewSessionManager(store storage.Store, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		store:  store,
		ttl:    DefaultSessionTTL,
		logger: slog.Default().With("component", "sessions"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured session lifetime.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Create stores a new session caching the derived key and returns its
// opaque 256-bit token alongside the record.
func (m *SessionManager) Create(ctx context.Context, userID string, key []byte, keyEpoch uint64) (string, *Session, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	token, err := util.RandomToken(sessionTokenBytes)
	if err != nil {
		return "", nil, fmt.Errorf("generating session token: %w", err)
	}

	now := timeNow().UTC()
	session := &Session{
		UserID:     userID,
		Key:        util.B64Encode(key),
		KeyEpoch:   keyEpoch,
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}

	doc, err := m.encodeSession(token, session)
	if err != nil {
		return "", nil, err
	}
	if err := m.store.Set(sessionPath(token), doc); err != nil {
		return "", nil, fmt.Errorf("persisting session: %w", err)
	}
	return token, session, nil
}

// Get fetches a session by token without enforcing expiry; callers that
// authenticate requests must use Validate instead.
func (m *SessionManager) Get(ctx context.Context, token string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := m.store.Get(sessionPath(token))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return m.decodeSession(token, doc)
}

// Validate is the canonical authenticated-request path: it resolves the
// token, deletes and rejects the session if its expiry has passed, and
// otherwise refreshes last_used_at. The expiry itself is never extended.
func (m *SessionManager) Validate(ctx context.Context, token string) (*Session, error) {
	session, err := m.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	if session.Expired(timeNow().UTC()) {
		if err := m.Delete(ctx, token); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}

	session.LastUsedAt = timeNow().UTC()
	err = m.store.Update(sessionPath(token), func([]byte) ([]byte, error) {
		return m.encodeSession(token, session)
	})
	// A concurrent sweep or logout may have removed the session between Get
	// and Update; the refresh is best-effort.
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return session, nil
}

// Delete removes a session. Deleting an absent session is not an error.
func (m *SessionManager) Delete(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.store.Delete(sessionPath(token))
}

// RebindKey atomically replaces the cached key of an existing session,
// leaving the expiry untouched. Used by a password change to keep the
// caller's session valid under the new key.
func (m *SessionManager) RebindKey(ctx context.Context, token string, newKey []byte, newEpoch uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := m.store.Update(sessionPath(token), func(doc []byte) ([]byte, error) {
		session, err := m.decodeSession(token, doc)
		if err != nil {
			return nil, err
		}
		session.Key = util.B64Encode(newKey)
		session.KeyEpoch = newEpoch
		return m.encodeSession(token, session)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNoSession
	}
	return err
}

// SweepExpired deletes every session whose expiry has passed and returns
// how many were removed. It races harmlessly with Validate: both sides
// delete idempotently.
func (m *SessionManager) SweepExpired(ctx context.Context) (int, error) {
	paths, err := m.store.List(sessionsPrefix)
	if err != nil {
		return 0, fmt.Errorf("listing sessions: %w", err)
	}

	now := timeNow().UTC()
	deleted := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		token := strings.TrimPrefix(path, sessionsPrefix)

		doc, err := m.store.Get(path)
		if err != nil {
			continue // already deleted by a concurrent validate
		}
		session, err := m.decodeSession(token, doc)
		if err != nil {
			// Undecodable entry (e.g. seal secret rotated) — remove it.
			m.logger.Warn("removing undecodable session record")
			_ = m.store.Delete(path)
			deleted++
			continue
		}
		if session.Expired(now) {
			_ = m.store.Delete(path)
			deleted++
		}
	}
	return deleted, nil
}

// RunSweeper runs SweepExpired on a fixed interval until ctx is canceled.
// Designed to run as a background goroutine next to the server.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.SweepExpired(ctx)
			if err != nil {
				m.logger.Error("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				m.logger.Debug("session sweep", "deleted", n)
			}
		}
	}
}

// sealedSessionDoc wraps an encrypted session document at rest.
type sealedSessionDoc struct {
	Sealed sealedPayload `json:"sealed"`
}

type sealedPayload struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

func (m *SessionManager) encodeSession(token string, session *Session) ([]byte, error) {
	plain, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	if m.sealKey == nil {
		return plain, nil
	}

	aad := []byte(sessionSealAAD + token)
	nonce, cipherText, err := util.SealAESGCM(plain, m.sealKey, aad)
	util.WipeBytes(plain)
	if err != nil {
		return nil, fmt.Errorf("sealing session: %w", err)
	}
	return json.Marshal(sealedSessionDoc{Sealed: sealedPayload{
		Ciphertext: util.B64Encode(cipherText),
		Nonce:      util.B64Encode(nonce),
	}})
}

func (m *SessionManager) decodeSession(token string, doc []byte) (*Session, error) {
	data := doc
	if m.sealKey != nil {
		var sealed sealedSessionDoc
		if err := json.Unmarshal(doc, &sealed); err != nil || sealed.Sealed.Ciphertext == "" {
			return nil, fmt.Errorf("%w: session record is not sealed", crypto.ErrDecryptionFailed)
		}
		cipherText, err := util.B64Decode(sealed.Sealed.Ciphertext)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed session ciphertext", crypto.ErrDecryptionFailed)
		}
		nonce, err := util.B64Decode(sealed.Sealed.Nonce)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed session nonce", crypto.ErrDecryptionFailed)
		}
		aad := []byte(sessionSealAAD + token)
		data, err = util.OpenAESGCM(nonce, cipherText, m.sealKey, aad)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", crypto.ErrDecryptionFailed, err)
		}
		defer util.WipeBytes(data)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &session, nil
}
