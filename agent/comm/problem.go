package comm

import (
	"github.com/findy-network/findy-didcomm/agent/didcomm"
	"github.com/findy-network/findy-didcomm/std/common"
)

// problemReport builds the problem report message for the message which ID
// is the parent thread.
func problemReport(code, text, pthID string) *didcomm.Msg {
	msg, err := didcomm.NewMsg(common.NewProblemReport(code, text, pthID))
	if err != nil {
		panic(err) // marshaling our own struct
	}
	return msg
}
