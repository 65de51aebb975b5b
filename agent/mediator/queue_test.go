package mediator

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/findy-network/findy-didcomm/agent/metrics"
	"github.com/findy-network/findy-didcomm/agent/storage/api"
	"github.com/findy-network/findy-didcomm/agent/storage/wrapper"
	"github.com/findy-network/findy-didcomm/agent/trans"
	"github.com/lainio/err2/assert"
	"github.com/lainio/err2/try"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMain(m *testing.M) {
	setUp()
	code := m.Run()
	os.Exit(code)
}

func setUp() {
	try.To(flag.Set("logtostderr", "true"))
	try.To(flag.Set("stderrthreshold", "WARNING"))
	try.To(flag.Set("v", "10"))
	flag.Parse()
}

type clock struct {
	lk sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.t
}

func (c *clock) add(d time.Duration) {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.t = c.t.Add(d)
}

func newQueue(t *testing.T, live *LiveSessions) (*Queue, *clock) {
	t.Helper()
	q, c, _ := newHookQueue(t, live)
	return q, c
}

// hookStore runs beforeUpdate in the middle of the queue's read-modify-write.
type hookStore struct {
	api.Store

	lk           sync.Mutex
	beforeUpdate func(msgs []*api.QueuedMessage) error
}

func (s *hookStore) setHook(f func(msgs []*api.QueuedMessage) error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.beforeUpdate = f
}

func (s *hookStore) Update(ctx context.Context, msgs ...*api.QueuedMessage) error {
	s.lk.Lock()
	f := s.beforeUpdate
	s.lk.Unlock()
	if f != nil {
		if err := f(msgs); err != nil {
			return err
		}
	}
	return s.Store.Update(ctx, msgs...)
}

func newHookQueue(t *testing.T, live *LiveSessions) (*Queue, *clock, *hookStore) {
	t.Helper()
	bolt := wrapper.New(wrapper.Config{FileName: "queue", FilePath: t.TempDir()})
	try.To(bolt.Init())
	t.Cleanup(func() { _ = bolt.Close() })
	store := &hookStore{Store: bolt}

	q := NewQueue(Config{
		Store:           store,
		Live:            live,
		InflightTimeout: time.Minute,
		RevertInterval:  time.Hour,
		Metrics:         metrics.NewMetricsWithRegistry(prometheus.NewRegistry()),
	})
	c := &clock{t: time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)}
	q.now = c.now
	return q, c, store
}

func payload(i int) []byte {
	return []byte(fmt.Sprintf(`{"ciphertext":"m%d"}`, i))
}

func payloads(msgs []*api.QueuedMessage) []string {
	s := make([]string, len(msgs))
	for i, m := range msgs {
		s[i] = string(m.Payload)
	}
	return s
}

func TestQueue_Order(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	ctx := context.Background()
	q, _ := newQueue(t, nil)

	for i := 1; i <= 3; i++ {
		assert.NoError(q.Enqueue(ctx, "c1", []string{"k1"}, payload(i)))
	}
	n, err := q.Status(ctx, "c1", "")
	assert.NoError(err)
	assert.Equal(n, 3)

	msgs, err := q.DeliverBatch(ctx, "c1", "", 2)
	assert.NoError(err)
	assert.DeepEqual(payloads(msgs), []string{string(payload(1)), string(payload(2))})

	n, err = q.Status(ctx, "c1", "")
	assert.NoError(err)
	assert.Equal(n, 1)

	msgs, err = q.DeliverBatch(ctx, "c1", "", 10)
	assert.NoError(err)
	assert.DeepEqual(payloads(msgs), []string{string(payload(3))})

	msgs, err = q.DeliverBatch(ctx, "c1", "", 10)
	assert.NoError(err)
	assert.SLen(msgs, 0)

	n, err = q.Status(ctx, "unknown", "")
	assert.NoError(err)
	assert.Equal(n, 0)
}

func TestQueue_RecipientKeyFilter(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	ctx := context.Background()
	q, _ := newQueue(t, nil)

	assert.NoError(q.Enqueue(ctx, "c1", []string{"k1"}, payload(1)))
	assert.NoError(q.Enqueue(ctx, "c1", []string{"k2"}, payload(2)))
	assert.NoError(q.Enqueue(ctx, "c1", []string{"k1"}, payload(3)))

	s, err := q.StatusDetail(ctx, "c1", "k1")
	assert.NoError(err)
	assert.Equal(s.MessageCount, 2)
	assert.Equal(s.TotalBytes, int64(len(payload(1))+len(payload(3))))

	msgs, err := q.DeliverBatch(ctx, "c1", "k2", 10)
	assert.NoError(err)
	assert.DeepEqual(payloads(msgs), []string{string(payload(2))})
}

func TestQueue_AtLeastOnce(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	ctx := context.Background()
	q, c := newQueue(t, nil)

	for i := 1; i <= 3; i++ {
		assert.NoError(q.Enqueue(ctx, "c1", nil, payload(i)))
	}
	first, err := q.DeliverBatch(ctx, "c1", "", 2)
	assert.NoError(err)
	assert.SLen(first, 2)

	// not expired yet
	n, err := q.RevertExpired(ctx)
	assert.NoError(err)
	assert.Equal(n, 0)

	c.add(2 * time.Minute)
	n, err = q.RevertExpired(ctx)
	assert.NoError(err)
	assert.Equal(n, 2)
	assert.Equal(testutil.ToFloat64(q.metrics.RevertedTotal), float64(2))

	again, err := q.DeliverBatch(ctx, "c1", "", 10)
	assert.NoError(err)
	assert.DeepEqual(payloads(again), []string{
		string(payload(1)), string(payload(2)), string(payload(3))})
	assert.Equal(again[0].ID, first[0].ID)

	ids := []string{again[0].ID, again[1].ID, again[2].ID, "unknown"}
	acked, err := q.Acknowledge(ctx, "c1", ids)
	assert.NoError(err)
	assert.Equal(acked, 3)

	c.add(2 * time.Minute)
	n, err = q.RevertExpired(ctx)
	assert.NoError(err)
	assert.Equal(n, 0)

	n, err = q.Status(ctx, "c1", "")
	assert.NoError(err)
	assert.Equal(n, 0)
}

func TestQueue_Contention(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	ctx := context.Background()
	q, c := newQueue(t, nil)

	assert.NoError(q.Enqueue(ctx, "c1", nil, payload(1)))
	assert.NoError(q.Enqueue(ctx, "c2", nil, payload(2)))

	unlock := q.conns.Lock("c1")

	_, err := q.DeliverBatch(ctx, "c1", "", 10)
	assert.That(errors.Is(err, ErrQueueContention))
	var cerr *QueueContentionError
	assert.That(errors.As(err, &cerr))
	assert.Equal(cerr.ConnectionID, "c1")

	// other connections aren't blocked
	msgs, err := q.DeliverBatch(ctx, "c2", "", 10)
	assert.NoError(err)
	assert.SLen(msgs, 1)

	// busy connection is skipped by the revert
	c.add(2 * time.Minute)
	n, err := q.RevertExpired(ctx)
	assert.NoError(err)
	assert.Equal(n, 1)

	done := make(chan []*api.QueuedMessage)
	go func() {
		msgs, _ := q.DeliverBatchWait(ctx, "c1", "", 10)
		done <- msgs
	}()
	select {
	case <-done:
		t.Fatal("DeliverBatchWait didn't wait")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	msgs = <-done
	assert.SLen(msgs, 1)
}

func TestQueue_DisjointConnections(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	ctx := context.Background()
	q, _ := newQueue(t, nil)

	const conns, count = 4, 10
	var wg sync.WaitGroup
	for c := 0; c < conns; c++ {
		wg.Add(1)
		go func(connID string) {
			defer wg.Done()
			for i := 0; i < count; i++ {
				try.To(q.Enqueue(ctx, connID, nil, payload(i)))
			}
		}(fmt.Sprintf("c%d", c))
	}
	wg.Wait()

	for c := 0; c < conns; c++ {
		msgs, err := q.DeliverBatch(ctx, fmt.Sprintf("c%d", c), "", 100)
		assert.NoError(err)
		assert.SLen(msgs, count)
		for i, m := range msgs {
			assert.Equal(string(m.Payload), string(payload(i)))
		}
	}
}

type pusher struct {
	lk     sync.Mutex
	pushed []*api.QueuedMessage
	err    error
	onPush func(msgs []*api.QueuedMessage)
}

func (p *pusher) Push(_ context.Context, _ LiveTarget, msgs []*api.QueuedMessage) error {
	p.lk.Lock()
	defer p.lk.Unlock()
	if p.onPush != nil {
		p.onPush(msgs)
	}
	if p.err != nil {
		return p.err
	}
	p.pushed = append(p.pushed, msgs...)
	return nil
}

func TestQueue_Live(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	ctx := context.Background()

	registry := trans.NewRegistry()
	session := trans.NewFuncSession(trans.TypeWS, func(context.Context, []byte) error { return nil })
	registry.Register(session)

	q, c := newQueue(t, NewLiveSessions(registry))
	p := &pusher{}
	q.SetPusher(p)

	q.Live().Start("c1", LiveTarget{SessionID: session.ID()})
	assert.That(q.Live().IsLive("c1"))

	assert.NoError(q.Enqueue(ctx, "c1", nil, payload(1)))
	assert.SLen(p.pushed, 1)
	n, err := q.Status(ctx, "c1", "")
	assert.NoError(err)
	assert.Equal(n, 0)

	// pushed message is in-flight until acknowledged
	c.add(2 * time.Minute)
	n, err = q.RevertExpired(ctx)
	assert.NoError(err)
	assert.Equal(n, 1)
	_, err = q.Acknowledge(ctx, "c1", []string{p.pushed[0].ID})
	assert.NoError(err)

	p.err = errors.New("session broken")
	assert.NoError(q.Enqueue(ctx, "c1", nil, payload(2)))
	n, err = q.Status(ctx, "c1", "")
	assert.NoError(err)
	assert.Equal(n, 1)

	registry.Remove(session.ID())
	assert.ThatNot(q.Live().IsLive("c1"))

	p.err = nil
	assert.NoError(q.Enqueue(ctx, "c1", nil, payload(3)))
	assert.SLen(p.pushed, 1)
	n, err = q.Status(ctx, "c1", "")
	assert.NoError(err)
	assert.Equal(n, 2)
}

func TestQueue_StartStop(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	ctx := context.Background()
	q, c := newQueue(t, nil)
	q.revertInterval = 20 * time.Millisecond

	assert.NoError(q.Enqueue(ctx, "c1", nil, payload(1)))
	_, err := q.DeliverBatch(ctx, "c1", "", 1)
	assert.NoError(err)
	c.add(2 * time.Minute)

	assert.NoError(q.Start())
	defer q.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := q.Status(ctx, "c1", ""); n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("revert job didn't run")
}

func TestQueue_AcknowledgeWaitsForBatch(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	ctx := context.Background()
	q, _, store := newHookQueue(t, nil)

	assert.NoError(q.Enqueue(ctx, "c1", nil, payload(1)))
	assert.NoError(q.Enqueue(ctx, "c1", nil, payload(2)))
	queued := try.To1(store.FindByConnectionID(ctx, "c1"))
	assert.SLen(queued, 2)

	inUpdate := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	store.setHook(func([]*api.QueuedMessage) error {
		once.Do(func() {
			close(inUpdate)
			<-release
		})
		return nil
	})

	type result struct {
		msgs []*api.QueuedMessage
		err  error
	}
	batch := make(chan result)
	go func() {
		msgs, err := q.DeliverBatch(ctx, "c1", "", 10)
		batch <- result{msgs, err}
	}()
	<-inUpdate

	acked := make(chan int)
	go func() {
		n, _ := q.Acknowledge(ctx, "c1", []string{queued[0].ID})
		acked <- n
	}()
	select {
	case <-acked:
		t.Fatal("Acknowledge didn't wait for the batch")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	r := <-batch
	assert.NoError(r.err)
	assert.SLen(r.msgs, 2)
	assert.Equal(<-acked, 1)

	left := try.To1(store.FindByConnectionID(ctx, "c1"))
	assert.SLen(left, 1)
	assert.Equal(left[0].ID, queued[1].ID)
	assert.Equal(left[0].State, api.InFlight)
}

func TestQueue_RevertContinuesAfterFailure(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	ctx := context.Background()
	q, c, store := newHookQueue(t, nil)

	for _, connID := range []string{"c1", "c2"} {
		assert.NoError(q.Enqueue(ctx, connID, nil, payload(1)))
		msgs, err := q.DeliverBatch(ctx, connID, "", 10)
		assert.NoError(err)
		assert.SLen(msgs, 1)
	}
	c.add(2 * time.Minute)

	errDisk := errors.New("disk full")
	store.setHook(func(msgs []*api.QueuedMessage) error {
		if msgs[0].ConnectionID == "c1" {
			return errDisk
		}
		return nil
	})

	n, err := q.RevertExpired(ctx)
	assert.That(errors.Is(err, errDisk))
	assert.Equal(n, 1)

	pending, err := q.Status(ctx, "c2", "")
	assert.NoError(err)
	assert.Equal(pending, 1)
	pending, err = q.Status(ctx, "c1", "")
	assert.NoError(err)
	assert.Equal(pending, 0)

	store.setHook(nil)
	n, err = q.RevertExpired(ctx)
	assert.NoError(err)
	assert.Equal(n, 1)
}

func TestQueue_AcknowledgedDuringFailedPush(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()
	ctx := context.Background()

	registry := trans.NewRegistry()
	session := trans.NewFuncSession(trans.TypeWS, func(context.Context, []byte) error { return nil })
	registry.Register(session)

	q, _, store := newHookQueue(t, NewLiveSessions(registry))
	// the recipient got the message although the push reported an error
	p := &pusher{err: errors.New("write timeout")}
	p.onPush = func(msgs []*api.QueuedMessage) {
		try.To1(q.Acknowledge(ctx, "c1", []string{msgs[0].ID}))
	}
	q.SetPusher(p)
	q.Live().Start("c1", LiveTarget{SessionID: session.ID()})

	assert.NoError(q.Enqueue(ctx, "c1", nil, payload(1)))
	left := try.To1(store.FindByConnectionID(ctx, "c1"))
	assert.SLen(left, 0)
}
