/*
Package didcomm offers the plaintext DIDComm message and the message type
parsing. Msg keeps the whole JSON object so that protocol handlers can decode
their own fields and unknown fields survive re-encoding.
*/
package didcomm

import (
	"encoding/json"
	"errors"

	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/findy-network/findy-didcomm/std/decorator"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

const (
	fieldID        = "@id"
	fieldType      = "@type"
	fieldThread    = "~thread"
	fieldTransport = "~transport"
	fieldService   = "~service"
)

// ErrNotMessage tells that the JSON isn't a DIDComm plaintext message.
var ErrNotMessage = errors.New("not a DIDComm plaintext message")

// Msg is a plaintext DIDComm message.
type Msg struct {
	fields map[string]json.RawMessage
}

// NewMsg marshals v to a Msg. If v doesn't have @id, new one is generated.
func NewMsg(v any) (m *Msg, err error) {
	defer err2.Handle(&err, "new msg")

	data := try.To1(json.Marshal(v))
	m = try.To1(parseFields(data))
	if m.ID() == "" {
		m.Set(fieldID, utils.UUID())
	}
	return m, nil
}

// ParseMsg parses data as plaintext message. Data must be a JSON object which
// has @type and non-empty @id fields.
func ParseMsg(data []byte) (m *Msg, err error) {
	m, err = parseFields(data)
	if err != nil {
		return nil, err
	}
	if m.ID() == "" {
		return nil, ErrNotMessage
	}
	return m, nil
}

func parseFields(data []byte) (m *Msg, err error) {
	m = &Msg{}
	if err = json.Unmarshal(data, &m.fields); err != nil || m.fields == nil {
		return nil, ErrNotMessage
	}
	if _, ok := m.fields[fieldType]; !ok {
		return nil, ErrNotMessage
	}
	return m, nil
}

// IsPlaintext tells if data looks like a plaintext message.
func IsPlaintext(data []byte) bool {
	_, err := ParseMsg(data)
	return err == nil
}

func (m *Msg) str(field string) string {
	var s string
	if raw, ok := m.fields[field]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func (m *Msg) ID() string {
	return m.str(fieldID)
}

// Type returns the message type with the legacy prefix replaced.
func (m *Msg) Type() string {
	return ReplaceLegacyPrefix(m.str(fieldType))
}

// MsgType returns the parsed message type.
func (m *Msg) MsgType() (MsgType, error) {
	return ParseMsgType(m.str(fieldType))
}

// Thread returns the ~thread decorator, nil if there is none.
func (m *Msg) Thread() *decorator.Thread {
	raw, ok := m.fields[fieldThread]
	if !ok {
		return nil
	}
	var t decorator.Thread
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil
	}
	return &t
}

// ThreadID returns the thread id which defaults to the message id.
func (m *Msg) ThreadID() string {
	if t := m.Thread(); t != nil && t.ID != "" {
		return t.ID
	}
	return m.ID()
}

// SetThread sets the ~thread decorator.
func (m *Msg) SetThread(t *decorator.Thread) {
	m.Set(fieldThread, t)
}

// Transport returns the ~transport decorator, nil if there is none.
func (m *Msg) Transport() *decorator.Transport {
	raw, ok := m.fields[fieldTransport]
	if !ok {
		return nil
	}
	var t decorator.Transport
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil
	}
	return &t
}

// HasTransport tells if the message has ~transport decorator set by the
// caller.
func (m *Msg) HasTransport() bool {
	_, ok := m.fields[fieldTransport]
	return ok
}

// SetReturnRoute sets the ~transport.return_route value.
func (m *Msg) SetReturnRoute(value string) {
	m.Set(fieldTransport, &decorator.Transport{ReturnRoute: value})
}

// HasReturnRoute tells if the sender wants replies thru the same transport
// session.
func (m *Msg) HasReturnRoute() bool {
	return m.Transport().HasReturnRoute()
}

// Service returns the ~service decorator of connection-less message.
func (m *Msg) Service() *decorator.Service {
	raw, ok := m.fields[fieldService]
	if !ok {
		return nil
	}
	var s decorator.Service
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

// Set sets the field to JSON of v. A nil v removes the field.
func (m *Msg) Set(field string, v any) {
	if v == nil {
		delete(m.fields, field)
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	m.fields[field] = data
}

// Field returns the raw JSON of the field.
func (m *Msg) Field(field string) (json.RawMessage, bool) {
	raw, ok := m.fields[field]
	return raw, ok
}

// Decode decodes the whole message to v, usually a protocol message struct.
func (m *Msg) Decode(v any) (err error) {
	defer err2.Handle(&err, "decode %s", m.Type())

	try.To(json.Unmarshal(try.To1(m.MarshalJSON()), v))
	return nil
}

func (m *Msg) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.fields)
}

// JSON returns the JSON bytes of the message.
func (m *Msg) JSON() []byte {
	data, err := m.MarshalJSON()
	if err != nil {
		panic(err)
	}
	return data
}
