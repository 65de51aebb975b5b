package didcomm

import (
	"testing"

	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/lainio/err2/assert"
)

func TestParseMsgType(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    MsgType
		wantErr bool
	}{
		{"didcomm org", "https://didcomm.org/routing/1.0/forward",
			MsgType{DocURI: "https://didcomm.org", Protocol: "routing", Major: 1, Minor: 0, Name: "forward"}, false},
		{"legacy prefix", pltype.Aries + "/connections/1.0/invitation",
			MsgType{DocURI: "https://didcomm.org", Protocol: "connections", Major: 1, Minor: 0, Name: "invitation"}, false},
		{"minor version", "https://didcomm.org/messagepickup/2.13/status",
			MsgType{DocURI: "https://didcomm.org", Protocol: "messagepickup", Major: 2, Minor: 13, Name: "status"}, false},
		{"deep doc uri", "https://example.com/a/b/proto/3.1/msg",
			MsgType{DocURI: "https://example.com/a/b", Protocol: "proto", Major: 3, Minor: 1, Name: "msg"}, false},
		{"no version", "https://didcomm.org/routing/forward", MsgType{}, true},
		{"bad version", "https://didcomm.org/routing/1/forward", MsgType{}, true},
		{"empty", "", MsgType{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.PushTester(t)
			defer assert.PopTester()

			got, err := ParseMsgType(tt.in)
			if tt.wantErr {
				assert.Error(err)
				return
			}
			assert.NoError(err)
			assert.Equal(got, tt.want)
		})
	}
}

func TestMsgType_Supports(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	registered := MustParseMsgType("https://didcomm.org/proto/1.0/foo")

	assert.That(registered.Supports(MustParseMsgType("https://didcomm.org/proto/1.3/foo")))
	assert.That(registered.Supports(MustParseMsgType("https://didcomm.org/proto/1.0/foo")))
	assert.ThatNot(registered.Supports(MustParseMsgType("https://didcomm.org/proto/2.0/foo")))
	assert.ThatNot(registered.Supports(MustParseMsgType("https://didcomm.org/proto/1.0/bar")))
	assert.ThatNot(registered.Supports(MustParseMsgType("https://example.org/proto/1.0/foo")))
}

func TestMsgType_String(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	mt := MustParseMsgType(pltype.PickupStatus)
	assert.Equal(mt.String(), pltype.PickupStatus)
	assert.Equal(mt.ProtocolURI(), pltype.Pickup)
	assert.Equal(mt.Family(), pltype.DIDOrg+"/"+pltype.ProtocolPickup)
}
