package decorator

import (
	"encoding/json"
	"testing"

	"github.com/lainio/err2/assert"
	"github.com/lainio/err2/try"
)

func TestNewThread(t *testing.T) {
	type args struct {
		ID  string
		PID string
	}
	tests := []struct {
		name string
		args args
		want *Thread
	}{
		{"PID empty", args{ID: "12345", PID: ""}, &Thread{ID: "12345"}},
		{"PID same", args{ID: "12345", PID: "12345"}, &Thread{ID: "12345"}},
		{"PID different", args{ID: "12345", PID: "123456"}, &Thread{ID: "12345", PID: "123456"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.PushTester(t)
			defer assert.PopTester()
			assert.DeepEqual(NewThread(tt.args.ID, tt.args.PID), tt.want)
		})
	}
}

func TestCheckThread(t *testing.T) {
	const (
		orgID = "ORG_ID_VALUE"
		id    = "ID_VALUE"
		pid   = "PID_VALUE"
	)
	tests := []struct {
		name   string
		thread *Thread
		want   *Thread
	}{
		{"was nil", nil, &Thread{ID: id}},
		{"was empty", &Thread{}, &Thread{ID: id}},
		{"was pid", &Thread{PID: pid}, &Thread{ID: id, PID: pid}},
		{"was org", &Thread{ID: orgID}, &Thread{ID: orgID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.PushTester(t)
			defer assert.PopTester()
			assert.DeepEqual(CheckThread(tt.thread, id), tt.want)
		})
	}
}

func TestTransport_ReturnRoute(t *testing.T) {
	tests := []struct {
		name      string
		transport *Transport
		any       bool
		forThread bool
	}{
		{"nil", nil, false, false},
		{"none", &Transport{ReturnRoute: ReturnRouteNone}, false, false},
		{"all", &Transport{ReturnRoute: ReturnRouteAll}, true, true},
		{"thread match", &Transport{ReturnRoute: ReturnRouteThread, ReturnRouteThread: "th"}, true, true},
		{"thread other", &Transport{ReturnRoute: ReturnRouteThread, ReturnRouteThread: "x"}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.PushTester(t)
			defer assert.PopTester()
			assert.Equal(tt.transport.HasReturnRoute(), tt.any)
			assert.Equal(tt.transport.ReturnRouteFor("th"), tt.forThread)
		})
	}
}

func TestThread_JSON(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	data := try.To1(json.Marshal(NewThread("a", "b")))
	var m struct {
		ThID  string `json:"thid"`
		PThID string `json:"pthid"`
	}
	try.To(json.Unmarshal(data, &m))
	assert.Equal(m.ThID, "a")
	assert.Equal(m.PThID, "b")
}
