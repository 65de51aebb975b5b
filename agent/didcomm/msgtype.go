package didcomm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/findy-network/findy-didcomm/agent/pltype"
)

var msgTypeExpr = regexp.MustCompile(`^(.+)/([^/\\]+)/(\d+)\.(\d+)/([^/\\]+)$`)

// MsgType is a parsed message type URI of the form
// <doc-uri>/<protocol>/<major>.<minor>/<message-name>.
type MsgType struct {
	DocURI   string
	Protocol string
	Major    int
	Minor    int
	Name     string
}

// ParseMsgType parses the message type URI. The legacy did:sov doc URI is
// replaced with https://didcomm.org.
func ParseMsgType(s string) (t MsgType, err error) {
	m := msgTypeExpr.FindStringSubmatch(ReplaceLegacyPrefix(s))
	if m == nil {
		return t, fmt.Errorf("invalid message type: '%s'", s)
	}
	t.DocURI, t.Protocol, t.Name = m[1], m[2], m[5]
	if t.Major, err = strconv.Atoi(m[3]); err != nil {
		return t, fmt.Errorf("invalid major version: '%s'", s)
	}
	if t.Minor, err = strconv.Atoi(m[4]); err != nil {
		return t, fmt.Errorf("invalid minor version: '%s'", s)
	}
	return t, nil
}

// MustParseMsgType is for constants. It panics on error.
func MustParseMsgType(s string) MsgType {
	t, err := ParseMsgType(s)
	if err != nil {
		panic(err)
	}
	return t
}

// ReplaceLegacyPrefix replaces the legacy did:sov:BzCbsNYhMrjHiqZDTUASHg;spec
// prefix with https://didcomm.org.
func ReplaceLegacyPrefix(s string) string {
	if strings.HasPrefix(s, pltype.Aries+"/") {
		return pltype.DIDOrg + strings.TrimPrefix(s, pltype.Aries)
	}
	return s
}

// Version returns major.minor.
func (t MsgType) Version() string {
	return fmt.Sprintf("%d.%d", t.Major, t.Minor)
}

// ProtocolURI returns <doc-uri>/<protocol>/<major>.<minor>.
func (t MsgType) ProtocolURI() string {
	return t.DocURI + "/" + t.Protocol + "/" + t.Version()
}

// Family returns <doc-uri>/<protocol>, the protocol without a version.
func (t MsgType) Family() string {
	return t.DocURI + "/" + t.Protocol
}

func (t MsgType) String() string {
	return t.ProtocolURI() + "/" + t.Name
}

// Supports tells if a handler registered for t can process message of type
// other. The minor version is ignored.
func (t MsgType) Supports(other MsgType) bool {
	return t.DocURI == other.DocURI &&
		t.Protocol == other.Protocol &&
		t.Major == other.Major &&
		t.Name == other.Name
}
