package vault

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/lockbox/crypto"
	"github.com/jmcleod/lockbox/storage/memory"
)

type rekeyFixture struct {
	store    *memory.Store
	gate     *AuthGate
	creds    *CredentialStore
	sessions *SessionManager
	rekeyer  *Rekeyer
}

func newRekeyFixture(t *testing.T) *rekeyFixture {
	t.Helper()
	store := memory.NewStore()
	sessions := NewSessionManager(store)
	creds := NewCredentialStore(store)
	return &rekeyFixture{
		store:    store,
		gate:     NewAuthGate(store, sessions, WithHashCost(bcrypt.MinCost)),
		creds:    creds,
		sessions: sessions,
		rekeyer:  NewRekeyer(store, creds, sessions, WithRekeyHashCost(bcrypt.MinCost)),
	}
}

func TestRekeyer_ChangePasswordEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newRekeyFixture(t)

	_, err := f.gate.Register(ctx, "a@b.com", "old password")
	require.NoError(t, err)
	token, session, err := f.gate.Login(ctx, "a@b.com", "old password")
	require.NoError(t, err)
	uid := session.UserID
	oldKey, err := session.KeyBytes()
	require.NoError(t, err)

	secrets := map[string]string{"github": "gh", "bank": "bk", "email": "em"}
	for pid, secret := range secrets {
		require.NoError(t, f.creds.Create(ctx, uid, pid, secret, oldKey, session.KeyEpoch))
	}

	updated, err := f.rekeyer.ChangePassword(ctx, uid, oldKey, "new password", token)
	require.NoError(t, err)
	assert.Equal(t, 3, updated)

	// The old key no longer opens anything.
	for pid := range secrets {
		_, err := f.creds.Read(ctx, uid, pid, oldKey)
		assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
	}

	// The caller's session was rebound in place and reads cleanly.
	rebound, err := f.sessions.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rebound.KeyEpoch)
	newKey, err := rebound.KeyBytes()
	require.NoError(t, err)
	for pid, secret := range secrets {
		plaintext, err := f.creds.Read(ctx, uid, pid, newKey)
		require.NoError(t, err)
		assert.Equal(t, secret, plaintext)
	}

	// The old password no longer logs in; the new one does and derives the
	// same key the session now carries.
	_, _, err = f.gate.Login(ctx, "a@b.com", "old password")
	assert.ErrorIs(t, err, ErrWrongPassword)
	_, fresh, err := f.gate.Login(ctx, "a@b.com", "new password")
	require.NoError(t, err)
	assert.Equal(t, rebound.Key, fresh.Key)
}

func TestRekeyer_NoRecords(t *testing.T) {
	ctx := context.Background()
	f := newRekeyFixture(t)

	_, err := f.gate.Register(ctx, "a@b.com", "old password")
	require.NoError(t, err)
	_, session, err := f.gate.Login(ctx, "a@b.com", "old password")
	require.NoError(t, err)
	oldKey, _ := session.KeyBytes()

	updated, err := f.rekeyer.ChangePassword(ctx, session.UserID, oldKey, "new password", "")
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestRekeyer_UserNotFound(t *testing.T) {
	f := newRekeyFixture(t)
	_, err := f.rekeyer.ChangePassword(context.Background(), "no-such-user", testRecordKey(1), "new password", "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRekeyer_EmptyNewPassword(t *testing.T) {
	f := newRekeyFixture(t)
	_, err := f.rekeyer.ChangePassword(context.Background(), "uid", testRecordKey(1), "", "")
	assert.ErrorIs(t, err, ErrValidation)
}

// A change interrupted mid-sweep is resumed by calling ChangePassword
// again with the same new password: the stored hash already matches, so
// the epoch is not bumped again and already-migrated records are skipped.
func TestRekeyer_ResumesInterruptedChange(t *testing.T) {
	ctx := context.Background()
	f := newRekeyFixture(t)

	_, err := f.gate.Register(ctx, "a@b.com", "old password")
	require.NoError(t, err)
	_, session, err := f.gate.Login(ctx, "a@b.com", "old password")
	require.NoError(t, err)
	uid := session.UserID
	oldKey, _ := session.KeyBytes()

	require.NoError(t, f.creds.Create(ctx, uid, "github", "gh", oldKey, 1))
	require.NoError(t, f.creds.Create(ctx, uid, "bank", "bk", oldKey, 1))

	updated, err := f.rekeyer.ChangePassword(ctx, uid, oldKey, "new password", "")
	require.NoError(t, err)
	require.Equal(t, 2, updated)

	// Roll one record back to its pre-sweep state, as if the first run had
	// crashed after migrating only "github".
	straggler, err := crypto.Seal("bk", oldKey)
	require.NoError(t, err)
	doc, err := json.Marshal(Record{PlainID: "bank", Envelope: straggler, KeyEpoch: 1})
	require.NoError(t, err)
	require.NoError(t, f.store.Set("data/"+uid+"/passwords/"+RecordID("bank"), doc))

	updated, err = f.rekeyer.ChangePassword(ctx, uid, oldKey, "new password", "")
	require.NoError(t, err)
	assert.Equal(t, 1, updated) // only the straggler

	_, fresh, err := f.gate.Login(ctx, "a@b.com", "new password")
	require.NoError(t, err)
	newKey, err := fresh.KeyBytes()
	require.NoError(t, err)
	for pid, secret := range map[string]string{"github": "gh", "bank": "bk"} {
		plaintext, err := f.creds.Read(ctx, uid, pid, newKey)
		require.NoError(t, err)
		assert.Equal(t, secret, plaintext)
	}
}

func TestRekeyer_PartialFailureReportsCount(t *testing.T) {
	ctx := context.Background()
	f := newRekeyFixture(t)

	_, err := f.gate.Register(ctx, "a@b.com", "old password")
	require.NoError(t, err)
	_, session, err := f.gate.Login(ctx, "a@b.com", "old password")
	require.NoError(t, err)
	uid := session.UserID
	oldKey, _ := session.KeyBytes()

	require.NoError(t, f.creds.Create(ctx, uid, "good", "g", oldKey, 1))
	// One record sealed under a foreign key at the old epoch cannot be
	// migrated: the sweep stops with a decryption error.
	require.NoError(t, f.creds.Create(ctx, uid, "foreign", "f", testRecordKey(9), 1))

	_, err = f.rekeyer.ChangePassword(ctx, uid, oldKey, "new password", "")
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}
