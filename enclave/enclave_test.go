package enclave

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	"github.com/findy-network/findy-didcomm/agent/sec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

const (
	dbFilename     = "enclave.bolt"
	keysetFilename = "enclave.keyset"
)

var testEnclave *Enclave

func TestMain(m *testing.M) {
	setUp()
	code := m.Run()
	tearDown()
	os.Exit(code)
}

func setUp() {
	_ = os.RemoveAll(dbFilename)
	_ = os.RemoveAll(keysetFilename)
	var err error
	testEnclave, err = InitSealedBox(dbFilename, keysetFilename)
	if err != nil {
		panic(err)
	}
}

func tearDown() {
	testEnclave.WipeSealedBox()
	_ = os.RemoveAll(keysetFilename)
}

func TestCreate(t *testing.T) {
	k, err := testEnclave.Create()
	assert.NoError(t, err)
	assert.NotEmpty(t, k)
	assert.True(t, testEnclave.Has(k))
	assert.False(t, testEnclave.Has("not-a-key"))

	priv, err := testEnclave.PrivateKey(k)
	require.NoError(t, err)
	pub, err := sec.PublicKey(k)
	require.NoError(t, err)
	assert.Equal(t, pub, priv.Public().(ed25519.PublicKey))

	_, err = testEnclave.PrivateKey("not-a-key")
	assert.ErrorIs(t, err, sec.ErrKeyNotFound)
}

func TestImport(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, "00000000000000000000000000seed01")

	k, err := testEnclave.Import(seed)
	require.NoError(t, err)
	k2, err := testEnclave.Import(seed)
	require.NoError(t, err)
	assert.Equal(t, k, k2)

	_, err = testEnclave.Import([]byte("short"))
	assert.Error(t, err)

	keys, err := testEnclave.Verkeys()
	assert.NoError(t, err)
	assert.Contains(t, keys, k)
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "e.bolt")
	ks := filepath.Join(dir, "e.keyset")

	e, err := InitSealedBox(db, ks)
	require.NoError(t, err)
	k, err := e.Create()
	require.NoError(t, err)
	priv, err := e.PrivateKey(k)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.PrivateKey(k)
	assert.ErrorIs(t, err, ErrClosed)

	e, err = InitSealedBox(db, ks)
	require.NoError(t, err)
	priv2, err := e.PrivateKey(k)
	require.NoError(t, err)
	assert.Equal(t, priv, priv2)
	require.NoError(t, e.Close())

	// other keyset cannot unseal
	e, err = InitSealedBox(db, filepath.Join(dir, "other.keyset"))
	require.NoError(t, err)
	defer e.Close()
	assert.True(t, e.Has(k))
	_, err = e.PrivateKey(k)
	assert.Error(t, err)
}

func TestSealedAtRest(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "e.bolt")
	e, err := InitSealedBox(db, filepath.Join(dir, "e.keyset"))
	require.NoError(t, err)

	seed := make([]byte, ed25519.SeedSize)
	copy(seed, "plaintext-seed-must-not-be-found")
	k, err := e.Import(seed)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	raw, err := bolt.Open(db, 0600, nil)
	require.NoError(t, err)
	defer raw.Close()
	require.NoError(t, raw.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(keyBucket)).Get([]byte(k))
		assert.NotNil(t, v)
		assert.NotContains(t, string(v), string(seed))
		return nil
	}))
}
