package sec

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"
	"strings"
	"sync"

	"filippo.io/edwards25519"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/mr-tron/base58"
)

// ErrKeyNotFound is returned when the key store doesn't have a private key
// for the requested verkey.
var ErrKeyNotFound = errors.New("key not found")

const didKeyPrefix = "did:key:z"

// ed25519-pub multicodec prefix
var ed25519Codec = []byte{0xed, 0x01}

// KeyStore holds Ed25519 signing keys. Keys are identified by their base58
// encoded public key, aka verkey.
type KeyStore interface {
	Create() (verkey string, err error)
	Import(seed []byte) (verkey string, err error)
	Has(verkey string) bool
	PrivateKey(verkey string) (ed25519.PrivateKey, error)
}

// MemKeyStore is an in-memory KeyStore for ephemeral agents and tests.
type MemKeyStore struct {
	lk   sync.RWMutex
	keys map[string]ed25519.PrivateKey
}

func NewMemKeyStore() *MemKeyStore {
	return &MemKeyStore{keys: make(map[string]ed25519.PrivateKey)}
}

func (s *MemKeyStore) Create() (verkey string, err error) {
	defer err2.Handle(&err, "create key")

	_, priv := try.To2(ed25519.GenerateKey(rand.Reader))
	return s.add(priv), nil
}

func (s *MemKeyStore) Import(seed []byte) (verkey string, err error) {
	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("import key: seed length %d", len(seed))
	}
	return s.add(ed25519.NewKeyFromSeed(seed)), nil
}

func (s *MemKeyStore) add(priv ed25519.PrivateKey) string {
	s.lk.Lock()
	defer s.lk.Unlock()

	verkey := base58.Encode(priv.Public().(ed25519.PublicKey))
	s.keys[verkey] = priv
	return verkey
}

func (s *MemKeyStore) Has(verkey string) bool {
	s.lk.RLock()
	defer s.lk.RUnlock()
	_, ok := s.keys[verkey]
	return ok
}

func (s *MemKeyStore) PrivateKey(verkey string) (ed25519.PrivateKey, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()
	priv, ok := s.keys[verkey]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return priv, nil
}

// PublicKey decodes a verkey to Ed25519 public key.
func PublicKey(verkey string) (pub ed25519.PublicKey, err error) {
	defer err2.Handle(&err, "decode verkey")

	b := try.To1(base58.Decode(verkey))
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("verkey length %d", len(b))
	}
	return b, nil
}

// NormalizeKey returns the base58 verkey of the argument which can be either a
// verkey or an Ed25519 did:key.
func NormalizeKey(key string) (verkey string, err error) {
	if !strings.HasPrefix(key, didKeyPrefix) {
		return key, nil
	}
	defer err2.Handle(&err, "normalize %s", key)

	if i := strings.Index(key, "#"); i > 0 {
		key = key[:i]
	}
	b := try.To1(base58.Decode(strings.TrimPrefix(key, didKeyPrefix)))
	if len(b) != len(ed25519Codec)+ed25519.PublicKeySize ||
		b[0] != ed25519Codec[0] || b[1] != ed25519Codec[1] {
		return "", errors.New("not an ed25519 did:key")
	}
	return base58.Encode(b[len(ed25519Codec):]), nil
}

// DIDKey returns the did:key form of the verkey.
func DIDKey(verkey string) (string, error) {
	pub, err := PublicKey(verkey)
	if err != nil {
		return "", err
	}
	return didKeyPrefix + base58.Encode(append(append([]byte{}, ed25519Codec...), pub...)), nil
}

// publicToCurve converts Ed25519 public key to X25519 public key.
func publicToCurve(pub ed25519.PublicKey) (cpub *[32]byte, err error) {
	defer err2.Handle(&err, "ed25519 to x25519")

	p := try.To1(new(edwards25519.Point).SetBytes(pub))
	cpub = new([32]byte)
	copy(cpub[:], p.BytesMontgomery())
	return cpub, nil
}

// privateToCurve converts Ed25519 private key to X25519 private key.
func privateToCurve(priv ed25519.PrivateKey) *[32]byte {
	h := sha512.Sum512(priv.Seed())
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64

	cpriv := new([32]byte)
	copy(cpriv[:], h[:32])
	return cpriv
}
