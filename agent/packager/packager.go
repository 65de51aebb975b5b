/*
Package packager is the DIDComm v1 envelope codec. It packs plaintext messages
to encrypted envelopes, wraps them to forward messages for each mediator hop,
and unpacks received envelopes. The primitives come from a sec.Crypto
provider, the packager itself owns no key material.
*/
package packager

import (
	"encoding/json"
	"errors"

	"github.com/findy-network/findy-didcomm/agent/sec"
	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/findy-network/findy-didcomm/std/common"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Keys tells to whom a message is packed. Routing keys are the mediator hops
// in order, the first one is the nearest to the recipient. Empty SenderKey
// means anoncrypt.
type Keys struct {
	RecipientKeys []string
	RoutingKeys   []string
	SenderKey     string
}

// Decrypted is the result of Unpack.
type Decrypted struct {
	Plaintext    []byte
	RecipientKey string
	SenderKey    string // empty for anoncrypt
}

type Packager struct {
	crypto sec.Crypto
}

func New(c sec.Crypto) *Packager {
	return &Packager{crypto: c}
}

// Crypto returns the crypto provider of the packager.
func (p *Packager) Crypto() sec.Crypto {
	return p.crypto
}

// Pack encrypts the message for the recipient keys and wraps it to forward
// messages for every routing key. The sender's private key must be in our key
// store for authcrypt.
func (p *Packager) Pack(msg []byte, keys Keys) (env *Envelope, err error) {
	defer err2.Handle(&err, "pack")

	if len(keys.RecipientKeys) == 0 {
		return nil, errors.New("no recipient keys")
	}

	recipientKeys := try.To1(normalize(keys.RecipientKeys))
	routingKeys := try.To1(normalize(keys.RoutingKeys))
	senderKey := keys.SenderKey
	if senderKey != "" {
		senderKey = try.To1(sec.NormalizeKey(senderKey))
	}

	env = try.To1(p.pack(msg, recipientKeys, senderKey))

	for _, routingKey := range routingKeys {
		fwd := common.NewForward(recipientKeys[0], env.JSON())
		glog.V(5).Infoln("wrapping to forward for", routingKey)
		env = try.To1(p.pack(try.To1(json.Marshal(fwd)), []string{routingKey}, ""))
		recipientKeys = []string{routingKey}
	}
	return env, nil
}

// PackJSON is Pack which returns the envelope JSON.
func (p *Packager) PackJSON(msg []byte, keys Keys) ([]byte, error) {
	env, err := p.Pack(msg, keys)
	if err != nil {
		return nil, err
	}
	return env.JSON(), nil
}

func (p *Packager) pack(msg []byte, recipientKeys []string, senderKey string) (env *Envelope, err error) {
	c := p.crypto
	cek := try.To1(c.NewCEK())

	alg := AlgAnon
	if senderKey != "" {
		alg = AlgAuth
	}
	recipients := make([]Recipient, 0, len(recipientKeys))
	for _, rk := range recipientKeys {
		var r Recipient
		r.Header.KID = rk
		if senderKey != "" {
			encKey, nonce := try.To2(c.AuthWrap(senderKey, rk, cek))
			sender := try.To1(c.AnonWrap(rk, []byte(senderKey)))
			r.EncryptedKey = utils.EncodeB64(encKey)
			r.Header.Sender = utils.EncodeB64(sender)
			r.Header.IV = utils.EncodeB64(nonce)
		} else {
			encKey := try.To1(c.AnonWrap(rk, cek))
			r.EncryptedKey = utils.EncodeB64(encKey)
		}
		recipients = append(recipients, r)
	}

	protected := utils.EncodeB64(try.To1(json.Marshal(protectedHeader{
		Enc:        EncAlg,
		Typ:        TypJWM,
		Alg:        alg,
		Recipients: recipients,
	})))

	iv := try.To1(c.NewNonce())
	ct, tag := try.To2(c.Encrypt(cek, iv, msg, []byte(protected)))

	return &Envelope{
		Protected:  protected,
		IV:         utils.EncodeB64(iv),
		CipherText: utils.EncodeB64(ct),
		Tag:        utils.EncodeB64(tag),
	}, nil
}

// Unpack decrypts the envelope with the first recipient entry which key we
// have. All the recipient entries are visited even after a hit, and every
// failure is the same EnvelopeDecryptionError without key ids.
func (p *Packager) Unpack(env *Envelope) (d *Decrypted, err error) {
	defer err2.Handle(&err, func(err error) error {
		glog.V(3).Infoln("unpack error:", err)
		if errors.Is(err, ErrEnvelopeDecryption) {
			return err
		}
		return &EnvelopeDecryptionError{Reason: "cannot decrypt"}
	})

	h := try.To1(env.header())

	hit := -1
	for i, r := range h.Recipients {
		kid, err := sec.NormalizeKey(r.Header.KID)
		has := err == nil && p.crypto.Has(kid)
		if has && hit < 0 {
			hit = i
		}
	}
	if hit < 0 {
		return nil, &EnvelopeDecryptionError{Reason: "no matching recipient key"}
	}
	r := h.Recipients[hit]
	recipientKey := try.To1(sec.NormalizeKey(r.Header.KID))
	encKey := try.To1(utils.DecodeB64(r.EncryptedKey))

	var cek []byte
	senderKey := ""
	switch h.Alg {
	case AlgAuth:
		if r.Header.Sender == "" || r.Header.IV == "" {
			return nil, &EnvelopeDecryptionError{Reason: "authcrypt header missing sender or iv"}
		}
		sealedSender := try.To1(utils.DecodeB64(r.Header.Sender))
		senderKey = string(try.To1(p.crypto.AnonUnwrap(recipientKey, sealedSender)))
		nonce := try.To1(utils.DecodeB64(r.Header.IV))
		cek = try.To1(p.crypto.AuthUnwrap(recipientKey, senderKey, encKey, nonce))
	case AlgAnon:
		if r.Header.Sender != "" || r.Header.IV != "" {
			return nil, &EnvelopeDecryptionError{Reason: "anoncrypt header has sender"}
		}
		cek = try.To1(p.crypto.AnonUnwrap(recipientKey, encKey))
	}

	iv := try.To1(utils.DecodeB64(env.IV))
	ct := try.To1(utils.DecodeB64(env.CipherText))
	tag := try.To1(utils.DecodeB64(env.Tag))
	pt := try.To1(p.crypto.Decrypt(cek, iv, ct, tag, []byte(env.Protected)))

	return &Decrypted{
		Plaintext:    pt,
		RecipientKey: recipientKey,
		SenderKey:    senderKey,
	}, nil
}

// UnpackJSON parses the envelope JSON and unpacks it.
func (p *Packager) UnpackJSON(data []byte) (*Decrypted, error) {
	env, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return p.Unpack(env)
}

func normalize(keys []string) (nkeys []string, err error) {
	nkeys = make([]string, 0, len(keys))
	for _, k := range keys {
		nk, err := sec.NormalizeKey(k)
		if err != nil {
			return nil, err
		}
		nkeys = append(nkeys, nk)
	}
	return nkeys, nil
}
