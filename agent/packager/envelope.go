package packager

import (
	"encoding/json"
	"errors"

	"github.com/findy-network/findy-didcomm/agent/utils"
)

const (
	EncAlg  = "xchacha20poly1305_ietf"
	TypJWM  = "JWM/1.0"
	AlgAuth = "Authcrypt"
	AlgAnon = "Anoncrypt"
)

// Media types of the encrypted envelope.
const (
	MediaType       = "application/didcomm-envelope-enc"
	LegacyMediaType = "application/ssi-agent-wire"
)

// Envelope is the legacy DIDComm v1 JWE-like wire envelope.
type Envelope struct {
	Protected  string `json:"protected"`
	IV         string `json:"iv"`
	CipherText string `json:"ciphertext"`
	Tag        string `json:"tag"`
}

type protectedHeader struct {
	Enc        string      `json:"enc"`
	Typ        string      `json:"typ"`
	Alg        string      `json:"alg"`
	Recipients []Recipient `json:"recipients"`
}

// Recipient is one recipient entry of the protected header.
type Recipient struct {
	EncryptedKey string          `json:"encrypted_key"`
	Header       RecipientHeader `json:"header"`
}

type RecipientHeader struct {
	KID    string `json:"kid"`
	Sender string `json:"sender,omitempty"`
	IV     string `json:"iv,omitempty"`
}

// Parse parses the envelope JSON. It checks the JWE structure only, the
// protected header is read by Unpack.
func Parse(data []byte) (env *Envelope, err error) {
	env = new(Envelope)
	if err = json.Unmarshal(data, env); err != nil {
		return nil, &EnvelopeDecryptionError{Reason: "malformed envelope"}
	}
	if env.Protected == "" || env.IV == "" || env.CipherText == "" || env.Tag == "" {
		return nil, &EnvelopeDecryptionError{Reason: "not an envelope"}
	}
	return env, nil
}

// IsEnvelope tells if the data has a valid envelope structure.
func IsEnvelope(data []byte) bool {
	_, err := Parse(data)
	return err == nil
}

// JSON returns the envelope JSON.
func (e *Envelope) JSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		panic(err)
	}
	return data
}

func (e *Envelope) header() (h *protectedHeader, err error) {
	data, err := utils.DecodeB64(e.Protected)
	if err != nil {
		return nil, &EnvelopeDecryptionError{Reason: "protected header encoding"}
	}
	h = new(protectedHeader)
	if err = json.Unmarshal(data, h); err != nil {
		return nil, &EnvelopeDecryptionError{Reason: "protected header"}
	}
	if h.Enc != EncAlg {
		return nil, &EnvelopeDecryptionError{Reason: "unsupported enc"}
	}
	if h.Alg != AlgAuth && h.Alg != AlgAnon {
		return nil, &EnvelopeDecryptionError{Reason: "unsupported alg"}
	}
	return h, nil
}

// RecipientKids returns the recipient key ids of the envelope without
// decrypting it. It's used to resolve the tenant before unpacking.
func (e *Envelope) RecipientKids() ([]string, error) {
	h, err := e.header()
	if err != nil {
		return nil, err
	}
	kids := make([]string, 0, len(h.Recipients))
	for _, r := range h.Recipients {
		kids = append(kids, r.Header.KID)
	}
	return kids, nil
}

// EnvelopeDecryptionError tells that the envelope couldn't be opened with any
// of our keys. It never includes key ids or key material.
type EnvelopeDecryptionError struct {
	Reason string
}

// ErrEnvelopeDecryption is for errors.Is checks.
var ErrEnvelopeDecryption = &EnvelopeDecryptionError{}

func (e *EnvelopeDecryptionError) Error() string {
	if e.Reason == "" {
		return "envelope decryption error"
	}
	return "envelope decryption error: " + e.Reason
}

func (e *EnvelopeDecryptionError) Is(target error) bool {
	var t *EnvelopeDecryptionError
	return errors.As(target, &t)
}
