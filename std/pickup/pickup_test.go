package pickup

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/findy-network/findy-didcomm/agent/pltype"
	"github.com/findy-network/findy-didcomm/std/decorator"
	"github.com/lainio/err2/assert"
	"github.com/lainio/err2/try"
)

var deliveryJSON = `{
  "@id": "123456781",
  "@type": "https://didcomm.org/messagepickup/2.0/delivery",
  "~thread": {"thid": "<message id of delivery-request message>"},
  "recipient_key": "<key for messages>",
  "~attach": [{
    "@id": "<messageid>",
    "data": {"json": {"protected": "p", "iv": "i", "ciphertext": "c", "tag": "t"}}
  }]
}`

func TestDelivery_ReadJSON(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	var d Delivery
	try.To(json.Unmarshal([]byte(deliveryJSON), &d))
	assert.Equal(d.Type, pltype.PickupDelivery)
	assert.Equal(d.Thread.ID, "<message id of delivery-request message>")
	assert.SLen(d.Attachments, 1)
	assert.Equal(d.Attachments[0].ID, "<messageid>")

	env := try.To1(json.Marshal(d.Attachments[0].Data.JSON))
	var m map[string]string
	try.To(json.Unmarshal(env, &m))
	assert.Equal(m["ciphertext"], "c")
}

func TestStatus_Times(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	now := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewStatus(2, "")
	s.SetReceivedTimes(now.Add(-time.Minute), now.Add(-time.Second), now)
	assert.Equal(s.OldestReceivedTime, "2023-05-01T11:59:00Z")
	assert.Equal(s.NewestReceivedTime, "2023-05-01T11:59:59Z")
	assert.Equal(s.LongestWaitedSecs, int64(60))

	empty := NewStatus(0, "key")
	empty.SetReceivedTimes(time.Time{}, time.Time{}, now)
	data := try.To1(json.Marshal(empty))
	var m map[string]any
	try.To(json.Unmarshal(data, &m))
	_, found := m["oldest_received_time"]
	assert.ThatNot(found)
	assert.DeepEqual(m["message_count"], float64(0))
}

func TestNewDelivery(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	att := decorator.NewJSONAttachment("q1", json.RawMessage(`{"ciphertext":"x"}`))
	d := NewDelivery("key", []decorator.Attachment{att})
	data := try.To1(json.Marshal(d))

	var got Delivery
	try.To(json.Unmarshal(data, &got))
	assert.Equal(got.Type, pltype.PickupDelivery)
	assert.Equal(got.RecipientKey, "key")
	assert.SLen(got.Attachments, 1)
	assert.Equal(got.Attachments[0].ID, "q1")
}
