package vault

import (
	"encoding/base64"
	"errors"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	masumi "github.com/masumi-network/masumi-go"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(&Config{Dir: t.TempDir(), Passphrase: "correct horse battery staple"})
	require.NoError(t, err)
	return v
}

func storedCredential() Credential {
	return Credential{
		OwnerIdentifier: "agent-1",
		Network:         masumi.NetworkPreprod,
		Address:         "addr_test1qz0example",
		VerificationKey: "vkey_example",
	}
}

func TestNewRequiresConfiguration(t *testing.T) {
	var confErr *masumi.ConfigurationError

	_, err := New(nil)
	require.ErrorAs(t, err, &confErr)

	_, err = New(&Config{Dir: t.TempDir()})
	require.ErrorAs(t, err, &confErr, "an empty passphrase must not fall back to an insecure default")

	_, err = New(&Config{Passphrase: "p"})
	require.ErrorAs(t, err, &confErr)
}

func TestStoreAndRecoverRoundTrip(t *testing.T) {
	v := newTestVault(t)

	phrases := []string{
		"abandon ability able about above absent absorb abstract absurd abuse access accident",
		"short",
		"phrase with unicode éèê and ; delimiters",
	}
	for _, phrase := range phrases {
		require.NoError(t, v.Store(storedCredential(), phrase))

		got, err := v.RecoveryPhrase("agent-1", masumi.NetworkPreprod)
		require.NoError(t, err)
		assert.Equal(t, phrase, got)
	}
}

func TestPlaintextPhraseNeverPersisted(t *testing.T) {
	v := newTestVault(t)
	phrase := "abandon ability able about above absent"
	require.NoError(t, v.Store(storedCredential(), phrase))

	cred, err := v.Load("agent-1", masumi.NetworkPreprod)
	require.NoError(t, err)

	raw, err := os.ReadFile(v.path("agent-1", masumi.NetworkPreprod))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), phrase)
	assert.Contains(t, string(raw), cred.Address, "address stays plaintext")
}

func TestDecryptWrongKey(t *testing.T) {
	dir := t.TempDir()
	v1, err := New(&Config{Dir: dir, Passphrase: "first"})
	require.NoError(t, err)
	require.NoError(t, v1.Store(storedCredential(), "secret phrase"))

	v2, err := New(&Config{Dir: dir, Passphrase: "second"})
	require.NoError(t, err)
	_, err = v2.RecoveryPhrase("agent-1", masumi.NetworkPreprod)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptCorruptedCiphertext(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, v.Store(storedCredential(), "secret phrase"))

	cred, err := v.Load("agent-1", masumi.NetworkPreprod)
	require.NoError(t, err)

	blob, err := base64.StdEncoding.DecodeString(cred.EncryptedPhrase)
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xff
	corrupted := base64.StdEncoding.EncodeToString(blob)

	_, err = v.decrypt(corrupted)
	assert.ErrorIs(t, err, ErrDecryption, "tampering must never return wrong data")

	_, err = v.decrypt("%%%not-base64%%%")
	assert.ErrorIs(t, err, ErrDecryption)

	_, err = v.decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestUpdateMetadataKeepsBlob(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, v.Store(storedCredential(), "secret phrase"))

	before, err := v.Load("agent-1", masumi.NetworkPreprod)
	require.NoError(t, err)

	updated, err := v.UpdateMetadata("agent-1", masumi.NetworkPreprod, func(c *Credential) {
		c.APIKey = "api-key-1"
		c.RegistryURL = "https://registry.example"
	})
	require.NoError(t, err)

	assert.Equal(t, "api-key-1", updated.APIKey)
	assert.Equal(t, "https://registry.example", updated.RegistryURL)
	assert.Equal(t, before.EncryptedPhrase, updated.EncryptedPhrase, "metadata updates never re-encrypt")
	assert.Equal(t, before.CreatedAt, updated.CreatedAt)

	phrase, err := v.RecoveryPhrase("agent-1", masumi.NetworkPreprod)
	require.NoError(t, err)
	assert.Equal(t, "secret phrase", phrase)
}

func TestDeleteAndNotFound(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, v.Store(storedCredential(), "secret phrase"))

	require.NoError(t, v.Delete("agent-1", masumi.NetworkPreprod))

	_, err := v.Load("agent-1", masumi.NetworkPreprod)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, v.Delete("agent-1", masumi.NetworkPreprod), ErrNotFound)
}

func TestList(t *testing.T) {
	v := newTestVault(t)

	creds, err := v.List()
	require.NoError(t, err)
	assert.Empty(t, creds)

	require.NoError(t, v.Store(storedCredential(), "phrase one"))
	other := storedCredential()
	other.OwnerIdentifier = "agent-2"
	other.Network = masumi.NetworkMainnet
	require.NoError(t, v.Store(other, "phrase two"))

	creds, err = v.List()
	require.NoError(t, err)
	assert.Len(t, creds, 2)
}

func TestFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	v := newTestVault(t)
	require.NoError(t, v.Store(storedCredential(), "secret phrase"))

	info, err := os.Stat(v.path("agent-1", masumi.NetworkPreprod))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEncryptFreshSaltAndNonce(t *testing.T) {
	v := newTestVault(t)

	first, err := v.encrypt("same phrase")
	require.NoError(t, err)
	second, err := v.encrypt("same phrase")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "each seal must use a fresh salt and nonce")
}

func TestSanitizedOwnerPath(t *testing.T) {
	v := newTestVault(t)
	cred := storedCredential()
	cred.OwnerIdentifier = "../escape/attempt"
	require.NoError(t, v.Store(cred, "secret phrase"))

	phrase, err := v.RecoveryPhrase("../escape/attempt", masumi.NetworkPreprod)
	require.NoError(t, err)
	assert.Equal(t, "secret phrase", phrase)

	if _, err := os.Stat(v.dir); errors.Is(err, os.ErrNotExist) {
		t.Fatal("vault dir missing")
	}
}
