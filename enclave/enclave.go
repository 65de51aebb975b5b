/*
Package enclave is a server-side Secure Enclave. It offers a sealed storage
for the agent's Ed25519 signing keys. The private key seeds are encrypted with
a Tink AEAD before they are written to the bolt file, and the verkey is bound
to the ciphertext as associated data.

The AEAD keyset is kept in its own file. Production deployments should keep
it on a different volume than the sealed box, or replace it with a KMS backed
keyset.
*/
package enclave

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/findy-network/findy-didcomm/agent/sec"
	"github.com/golang/glog"
	"github.com/google/tink/go/aead"
	"github.com/google/tink/go/insecurecleartextkeyset"
	"github.com/google/tink/go/keyset"
	"github.com/google/tink/go/tink"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/mr-tron/base58"
	bolt "go.etcd.io/bbolt"
)

const keyBucket = "key_bucket"

// ErrSealBoxAlreadyExists is an error for enclave sealed box already open.
var ErrSealBoxAlreadyExists = errors.New("enclave sealed box exists")

// Enclave is the sealed key store. It implements sec.KeyStore.
type Enclave struct {
	lk       sync.RWMutex
	filename string
	db       *bolt.DB
	aead     tink.AEAD
}

var _ sec.KeyStore = (*Enclave)(nil)

// InitSealedBox opens the sealed box file. The keyset file is created with a
// fresh XChaCha20-Poly1305 key if it doesn't exist.
func InitSealedBox(filename, keysetFile string) (e *Enclave, err error) {
	defer err2.Handle(&err, "init enclave %s", filename)

	glog.V(1).Infoln("init enclave", filename)

	a := try.To1(loadAEAD(keysetFile))
	db := try.To1(bolt.Open(filename, 0600, nil))
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(keyBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Enclave{filename: filename, db: db, aead: a}, nil
}

func loadAEAD(keysetFile string) (a tink.AEAD, err error) {
	defer err2.Handle(&err, "keyset")

	var h *keyset.Handle
	data, err := os.ReadFile(keysetFile)
	switch {
	case err == nil:
		h = try.To1(insecurecleartextkeyset.Read(
			keyset.NewBinaryReader(bytes.NewReader(data))))
	case errors.Is(err, os.ErrNotExist):
		glog.V(1).Infoln("creating new enclave keyset", keysetFile)
		h = try.To1(keyset.NewHandle(aead.XChaCha20Poly1305KeyTemplate()))
		buf := new(bytes.Buffer)
		try.To(insecurecleartextkeyset.Write(h, keyset.NewBinaryWriter(buf)))
		try.To(os.WriteFile(keysetFile, buf.Bytes(), 0600))
	default:
		return nil, err
	}
	return aead.New(h)
}

// Close closes the sealed box. It can be opened again with InitSealedBox.
func (e *Enclave) Close() (err error) {
	defer err2.Handle(&err, "close enclave")

	e.lk.Lock()
	defer e.lk.Unlock()

	if e.db == nil {
		return nil
	}
	try.To(e.db.Close())
	e.db = nil
	return nil
}

// WipeSealedBox closes and destroys the enclave permanently. This version
// only removes the sealed box file.
func (e *Enclave) WipeSealedBox() {
	_ = e.Close()
	if err := os.RemoveAll(e.filename); err != nil {
		glog.Warningf("wipe enclave: %v", err)
	}
}

// Create generates and stores a new signing key.
func (e *Enclave) Create() (verkey string, err error) {
	defer err2.Handle(&err, "create key")

	seed := make([]byte, ed25519.SeedSize)
	try.To1(rand.Read(seed))
	return e.Import(seed)
}

// Import stores the key of the seed. Importing the same seed twice is a no-op.
func (e *Enclave) Import(seed []byte) (verkey string, err error) {
	defer err2.Handle(&err, "import key")

	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("seed length %d", len(seed))
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	verkey = base58.Encode(pub)
	sealed := try.To1(e.aead.Encrypt(seed, []byte(verkey)))
	try.To(e.put(verkey, sealed))
	glog.V(3).Infoln("enclave key stored:", verkey)
	return verkey, nil
}

func (e *Enclave) Has(verkey string) bool {
	sealed, err := e.get(verkey)
	return err == nil && sealed != nil
}

func (e *Enclave) PrivateKey(verkey string) (k ed25519.PrivateKey, err error) {
	sealed, err := e.get(verkey)
	if err != nil {
		return nil, err
	}
	if sealed == nil {
		return nil, sec.ErrKeyNotFound
	}
	seed, err := e.aead.Decrypt(sealed, []byte(verkey))
	if err != nil {
		return nil, fmt.Errorf("unseal key: %w", err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// Verkeys lists all the stored keys.
func (e *Enclave) Verkeys() (keys []string, err error) {
	defer err2.Handle(&err, "list keys")

	e.lk.RLock()
	defer e.lk.RUnlock()

	if e.db == nil {
		return nil, ErrClosed
	}
	try.To(e.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(keyBucket)).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	}))
	return keys, nil
}
