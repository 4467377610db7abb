package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/lockbox/crypto"
	"github.com/jmcleod/lockbox/internal/util"
	"github.com/jmcleod/lockbox/storage"
)

// DefaultHashCost is the bcrypt cost factor for new password hashes.
const DefaultHashCost = 10

// AuthGate verifies login credentials against stored password hashes and,
// on success, turns the master password into a key-bearing session. Login
// is the only path anywhere that derives a key from a raw password;
// every subsequent request reuses the session's cached key.
type AuthGate struct {
	store    storage.Store
	sessions *SessionManager
	hashCost int
}

// AuthOption configures an AuthGate.
type AuthOption func(*AuthGate)

// WithHashCost overrides the bcrypt cost factor.
func WithHashCost(cost int) AuthOption {
	return func(g *AuthGate) {
		g.hashCost = cost
	}
}

// NewAuthGate creates an AuthGate over the given store and session manager.
func NewAuthGate(store storage.Store, sessions *SessionManager, opts ...AuthOption) *AuthGate {
	g := &AuthGate{
		store:    store,
		sessions: sessions,
		hashCost: DefaultHashCost,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register creates a new user: a bcrypt hash of the password and a fresh
// per-user KDF salt. The master password itself is never persisted.
func (g *AuthGate) Register(ctx context.Context, email, password string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrMissingCredentials)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(util.Normalize(password)), g.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotCreateUser, err)
	}

	user := &User{
		Email:        email,
		PasswordHash: string(hash),
		KDFSalt:      util.B64Encode(salt),
		KDFParams:    crypto.DefaultKDFParams(),
		KeyEpoch:     1,
		CreatedAt:    timeNow().UTC(),
	}
	doc, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("encoding user: %w", err)
	}

	err = g.store.SetIfAbsent(userPath(UserID(email)), doc)
	if errors.Is(err, storage.ErrExists) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotCreateUser, err)
	}
	return user, nil
}

// Login verifies the password against the stored hash, derives the user's
// key from the persisted salt, and opens a session caching it. The derived
// key is wiped locally once the session holds it.
func (g *AuthGate) Login(ctx context.Context, email, password string) (string, *Session, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if email == "" || password == "" {
		return "", nil, fmt.Errorf("%w: email and password are required", ErrMissingCredentials)
	}

	uid := UserID(email)
	user, err := loadUser(g.store, uid)
	if err != nil {
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(util.Normalize(password))); err != nil {
		return "", nil, ErrWrongPassword
	}

	salt, err := user.Salt()
	if err != nil {
		return "", nil, err
	}
	key, err := crypto.DeriveKey(password, salt, user.KDFParams)
	if err != nil {
		return "", nil, err
	}
	defer util.WipeBytes(key)

	token, session, err := g.sessions.Create(ctx, uid, key, user.KeyEpoch)
	if err != nil {
		return "", nil, err
	}
	return token, session, nil
}

// Logout deletes the session for the given token; an unknown token is not
// an error.
func (g *AuthGate) Logout(ctx context.Context, token string) error {
	return g.sessions.Delete(ctx, token)
}

func loadUser(store storage.Store, uid string) (*User, error) {
	doc, err := store.Get(userPath(uid))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	var user User
	if err := json.Unmarshal(doc, &user); err != nil {
		return nil, fmt.Errorf("decoding user: %w", err)
	}
	return &user, nil
}
