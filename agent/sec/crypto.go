/*
Package sec is the crypto provider of the DIDComm envelope codec. It
implements the primitives the codec needs: XChaCha20-Poly1305 content
encryption, X25519 crypto_box and sealed box key wrapping, and Ed25519
signatures. Private keys never leave the provider, callers refer to them by
verkey.
*/
package sec

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/box"
)

const (
	KeySize    = chacha20poly1305.KeySize
	NonceSize  = chacha20poly1305.NonceSizeX
	TagSize    = chacha20poly1305.Overhead
	BoxNonceSz = 24
)

var (
	ErrDecrypt   = errors.New("decrypt failed")
	ErrSignature = errors.New("signature verification failed")
)

// Crypto is the interface the envelope codec uses. It owns the key material
// through its KeyStore.
type Crypto interface {
	Has(verkey string) bool

	NewCEK() ([]byte, error)
	NewNonce() ([]byte, error)

	Encrypt(cek, nonce, plaintext, aad []byte) (ciphertext, tag []byte, err error)
	Decrypt(cek, nonce, ciphertext, tag, aad []byte) ([]byte, error)

	AuthWrap(senderVerkey, recipientVerkey string, data []byte) (wrapped, nonce []byte, err error)
	AuthUnwrap(recipientVerkey, senderVerkey string, wrapped, nonce []byte) ([]byte, error)

	AnonWrap(recipientVerkey string, data []byte) ([]byte, error)
	AnonUnwrap(recipientVerkey string, wrapped []byte) ([]byte, error)

	Sign(verkey string, msg []byte) ([]byte, error)
	Verify(verkey string, msg, sig []byte) error
}

// NaCl is the default Crypto implementation.
type NaCl struct {
	Keys KeyStore
}

// New returns a crypto provider for the key store.
func New(keys KeyStore) *NaCl {
	return &NaCl{Keys: keys}
}

func random(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *NaCl) Has(verkey string) bool {
	return c.Keys.Has(verkey)
}

func (c *NaCl) NewCEK() ([]byte, error) {
	return random(KeySize)
}

func (c *NaCl) NewNonce() ([]byte, error) {
	return random(NonceSize)
}

func (c *NaCl) Encrypt(cek, nonce, plaintext, aad []byte) (ciphertext, tag []byte, err error) {
	defer err2.Handle(&err, "encrypt")

	aead := try.To1(chacha20poly1305.NewX(cek))
	sealed := aead.Seal(nil, nonce, plaintext, aad)
	split := len(sealed) - TagSize
	return sealed[:split], sealed[split:], nil
}

func (c *NaCl) Decrypt(cek, nonce, ciphertext, tag, aad []byte) (pt []byte, err error) {
	aead, err := chacha20poly1305.NewX(cek)
	if err != nil {
		return nil, ErrDecrypt
	}
	if len(nonce) != NonceSize || len(tag) != TagSize {
		return nil, ErrDecrypt
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(append(sealed, ciphertext...), tag...)
	pt, err = aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

func (c *NaCl) AuthWrap(
	senderVerkey, recipientVerkey string,
	data []byte,
) (
	wrapped, nonce []byte,
	err error,
) {
	defer err2.Handle(&err, "auth wrap")

	priv := try.To1(c.Keys.PrivateKey(senderVerkey))
	rpub := try.To1(curvePublic(recipientVerkey))

	var n [BoxNonceSz]byte
	nonce = try.To1(random(BoxNonceSz))
	copy(n[:], nonce)

	wrapped = box.Seal(nil, data, &n, rpub, privateToCurve(priv))
	return wrapped, nonce, nil
}

func (c *NaCl) AuthUnwrap(
	recipientVerkey, senderVerkey string,
	wrapped, nonce []byte,
) (
	data []byte,
	err error,
) {
	defer err2.Handle(&err, "auth unwrap")

	priv := try.To1(c.Keys.PrivateKey(recipientVerkey))
	spub := try.To1(curvePublic(senderVerkey))
	if len(nonce) != BoxNonceSz {
		return nil, ErrDecrypt
	}
	var n [BoxNonceSz]byte
	copy(n[:], nonce)

	data, ok := box.Open(nil, wrapped, &n, spub, privateToCurve(priv))
	if !ok {
		return nil, ErrDecrypt
	}
	return data, nil
}

func (c *NaCl) AnonWrap(recipientVerkey string, data []byte) (wrapped []byte, err error) {
	defer err2.Handle(&err, "anon wrap")

	rpub := try.To1(curvePublic(recipientVerkey))
	return try.To1(box.SealAnonymous(nil, data, rpub, rand.Reader)), nil
}

func (c *NaCl) AnonUnwrap(recipientVerkey string, wrapped []byte) (data []byte, err error) {
	defer err2.Handle(&err, "anon unwrap")

	priv := try.To1(c.Keys.PrivateKey(recipientVerkey))
	rpub := try.To1(curvePublic(recipientVerkey))

	data, ok := box.OpenAnonymous(nil, wrapped, rpub, privateToCurve(priv))
	if !ok {
		return nil, ErrDecrypt
	}
	return data, nil
}

func (c *NaCl) Sign(verkey string, msg []byte) (sig []byte, err error) {
	defer err2.Handle(&err, "sign")

	priv := try.To1(c.Keys.PrivateKey(verkey))
	return ed25519.Sign(priv, msg), nil
}

func (c *NaCl) Verify(verkey string, msg, sig []byte) (err error) {
	defer err2.Handle(&err, "verify")

	pub := try.To1(PublicKey(verkey))
	if !ed25519.Verify(pub, msg, sig) {
		return ErrSignature
	}
	return nil
}

func curvePublic(verkey string) (*[32]byte, error) {
	pub, err := PublicKey(verkey)
	if err != nil {
		return nil, err
	}
	return publicToCurve(pub)
}
