/*
Package mediator implements the forward message queue of a DIDComm mediator.
Forward messages are persisted per connection in receipt order until the
recipient picks them up and acknowledges them. A delivered message is
in-flight until the acknowledgement arrives, and a periodic job returns the
expired in-flight messages back to pending, which gives at-least-once
delivery.
*/
package mediator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/findy-network/findy-didcomm/agent/metrics"
	"github.com/findy-network/findy-didcomm/agent/sec"
	"github.com/findy-network/findy-didcomm/agent/storage/api"
	"github.com/findy-network/findy-didcomm/agent/utils"
	"github.com/go-co-op/gocron"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// QueueContentionError is returned by DeliverBatch when another batch of
// the same connection is in progress. The pickup should be retried.
type QueueContentionError struct {
	ConnectionID string
}

// ErrQueueContention is for errors.Is checks.
var ErrQueueContention = &QueueContentionError{}

func (e *QueueContentionError) Error() string {
	return fmt.Sprintf("queue of connection %s is busy", e.ConnectionID)
}

func (e *QueueContentionError) Is(target error) bool {
	var t *QueueContentionError
	return errors.As(target, &t)
}

// Pusher delivers queued messages over a live mode session.
type Pusher interface {
	Push(ctx context.Context, target LiveTarget, msgs []*api.QueuedMessage) error
}

// Status is the queue status of a connection.
type Status struct {
	MessageCount int
	TotalBytes   int64
	Oldest       time.Time
	Newest       time.Time
}

type Config struct {
	Store           api.Store
	Live            *LiveSessions
	InflightTimeout time.Duration
	RevertInterval  time.Duration
	Metrics         *metrics.Metrics
}

type Queue struct {
	store           api.Store
	live            *LiveSessions
	pusher          Pusher
	inflightTimeout time.Duration
	revertInterval  time.Duration
	metrics         *metrics.Metrics

	conns utils.KeyedMutex
	cron  *gocron.Scheduler
	now   func() time.Time
}

func NewQueue(cfg Config) *Queue {
	q := &Queue{
		store:           cfg.Store,
		live:            cfg.Live,
		inflightTimeout: cfg.InflightTimeout,
		revertInterval:  cfg.RevertInterval,
		metrics:         cfg.Metrics,
		now:             time.Now,
	}
	if q.inflightTimeout == 0 {
		q.inflightTimeout = utils.Settings.InflightTimeout()
	}
	if q.revertInterval == 0 {
		q.revertInterval = utils.Settings.RevertInterval()
	}
	if q.metrics == nil {
		q.metrics = metrics.Default()
	}
	if q.live == nil {
		q.live = NewLiveSessions(nil)
	}
	return q
}

// SetPusher installs the live mode pusher. Without it live mode is off.
func (q *Queue) SetPusher(p Pusher) {
	q.pusher = p
}

// Live returns the live mode session book of the queue.
func (q *Queue) Live() *LiveSessions {
	return q.live
}

// Start schedules the revert job.
func (q *Queue) Start() (err error) {
	defer err2.Handle(&err, "start queue revert job")

	q.cron = gocron.NewScheduler(time.UTC)
	q.cron.SingletonModeAll()
	try.To1(q.cron.Every(q.revertInterval).Do(func() {
		n, err := q.RevertExpired(context.Background())
		if err != nil {
			glog.Warningln("revert expired:", err)
			return
		}
		if n > 0 {
			glog.V(1).Infof("reverted %d expired in-flight messages", n)
		}
	}))
	q.cron.StartAsync()
	glog.V(1).Infoln("queue revert job started, interval:", q.revertInterval)
	return nil
}

// Stop stops the revert job.
func (q *Queue) Stop() {
	if q.cron != nil {
		q.cron.Stop()
		q.cron = nil
	}
}

// Enqueue persists the message for the connection. If the connection is in
// live mode the message is pushed right away and persisted as in-flight
// until the acknowledgement arrives.
func (q *Queue) Enqueue(ctx context.Context, connID string, recipientKeys []string, payload []byte) (err error) {
	defer err2.Handle(&err, "enqueue %s", connID)

	now := q.now().UTC()
	msg := &api.QueuedMessage{
		ID:            utils.UUID(),
		ConnectionID:  connID,
		RecipientKeys: recipientKeys,
		Payload:       payload,
		ReceivedAt:    now,
		State:         api.Pending,
	}

	target, live := q.live.Get(connID)
	if !live || q.pusher == nil {
		try.To(q.store.Save(ctx, msg))
		q.metrics.QueuedTotal.Inc()
		glog.V(3).Infof("queued %s for connection %s", msg.ID, connID)
		return nil
	}

	msg.State = api.InFlight
	msg.InFlightUntil = now.Add(q.inflightTimeout)
	try.To(q.store.Save(ctx, msg))
	q.metrics.QueuedTotal.Inc()

	if err := q.pusher.Push(ctx, target, []*api.QueuedMessage{msg}); err != nil {
		glog.V(1).Infof("live push to %s failed, message stays queued: %v", connID, err)
		try.To(q.requeue(ctx, msg))
		return nil
	}
	q.metrics.LiveDelivered.Inc()
	glog.V(3).Infof("pushed %s to live connection %s", msg.ID, connID)
	return nil
}

func matches(m *api.QueuedMessage, recipientKey string) bool {
	if recipientKey == "" {
		return true
	}
	if nk, err := sec.NormalizeKey(recipientKey); err == nil {
		recipientKey = nk
	}
	for _, k := range m.RecipientKeys {
		if k == recipientKey {
			return true
		}
	}
	return false
}

func (q *Queue) pending(ctx context.Context, connID, recipientKey string) (msgs []*api.QueuedMessage, err error) {
	all, err := q.store.FindByConnectionID(ctx, connID)
	if err != nil {
		return nil, err
	}
	for _, m := range all {
		if m.State == api.Pending && matches(m, recipientKey) {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

// Status returns the number of pending messages. An empty recipientKey
// counts all of the connection's messages.
func (q *Queue) Status(ctx context.Context, connID, recipientKey string) (int, error) {
	s, err := q.StatusDetail(ctx, connID, recipientKey)
	if err != nil {
		return 0, err
	}
	return s.MessageCount, nil
}

// StatusDetail is Status with the byte count and the received times.
func (q *Queue) StatusDetail(ctx context.Context, connID, recipientKey string) (s *Status, err error) {
	defer err2.Handle(&err, "status %s", connID)

	msgs := try.To1(q.pending(ctx, connID, recipientKey))
	s = &Status{MessageCount: len(msgs)}
	for _, m := range msgs {
		s.TotalBytes += int64(len(m.Payload))
		if s.Oldest.IsZero() || m.ReceivedAt.Before(s.Oldest) {
			s.Oldest = m.ReceivedAt
		}
		if m.ReceivedAt.After(s.Newest) {
			s.Newest = m.ReceivedAt
		}
	}
	return s, nil
}

// DeliverBatch returns at most limit pending messages in receipt order and
// marks them in-flight. If another batch of the connection is in progress
// QueueContentionError is returned.
func (q *Queue) DeliverBatch(ctx context.Context, connID, recipientKey string, limit int) ([]*api.QueuedMessage, error) {
	unlock, ok := q.conns.TryLock(connID)
	if !ok {
		q.metrics.QueueContention.Inc()
		return nil, &QueueContentionError{ConnectionID: connID}
	}
	defer unlock()
	return q.deliverBatch(ctx, connID, recipientKey, limit)
}

// DeliverBatchWait is DeliverBatch which waits for the other batch.
func (q *Queue) DeliverBatchWait(ctx context.Context, connID, recipientKey string, limit int) ([]*api.QueuedMessage, error) {
	unlock := q.conns.Lock(connID)
	defer unlock()
	return q.deliverBatch(ctx, connID, recipientKey, limit)
}

func (q *Queue) deliverBatch(ctx context.Context, connID, recipientKey string, limit int) (msgs []*api.QueuedMessage, err error) {
	defer err2.Handle(&err, "deliver batch %s", connID)

	if limit <= 0 {
		return nil, nil
	}
	msgs = try.To1(q.pending(ctx, connID, recipientKey))
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	until := q.now().UTC().Add(q.inflightTimeout)
	for _, m := range msgs {
		m.State = api.InFlight
		m.InFlightUntil = until
	}
	try.To(q.store.Update(ctx, msgs...))
	q.metrics.DeliveredTotal.Add(float64(len(msgs)))
	glog.V(3).Infof("delivering %d messages to connection %s", len(msgs), connID)
	return msgs, nil
}

// requeue returns the pushed message to pending. A message acknowledged in
// the meantime is left deleted.
func (q *Queue) requeue(ctx context.Context, msg *api.QueuedMessage) error {
	unlock := q.conns.Lock(msg.ConnectionID)
	defer unlock()

	msg.State = api.Pending
	msg.InFlightUntil = time.Time{}
	err := q.store.Update(ctx, msg)
	if errors.Is(err, api.ErrNotFound) {
		glog.V(3).Infof("message %s acknowledged before requeue", msg.ID)
		return nil
	}
	return err
}

// Acknowledge removes the messages. Unknown IDs are ignored, and pending
// messages are removed as well because the recipient has seen them. It waits
// for the batch of the connection in progress.
func (q *Queue) Acknowledge(ctx context.Context, connID string, ids []string) (n int, err error) {
	defer err2.Handle(&err, "acknowledge %s", connID)

	if len(ids) == 0 {
		return 0, nil
	}
	unlock := q.conns.Lock(connID)
	defer unlock()

	n = try.To1(q.store.Delete(ctx, connID, ids))
	q.metrics.AckedTotal.Add(float64(n))
	glog.V(3).Infof("acknowledged %d/%d messages of connection %s", n, len(ids), connID)
	return n, nil
}

// RevertExpired returns the expired in-flight messages to pending. The
// connections which have a batch in progress are skipped until next round.
// A failing connection doesn't stop the others, the errors are returned
// joined.
func (q *Queue) RevertExpired(ctx context.Context) (n int, err error) {
	defer err2.Handle(&err, "revert expired")

	now := q.now()
	var errs []error
	for _, connID := range try.To1(q.store.ConnectionIDs(ctx)) {
		unlock, ok := q.conns.TryLock(connID)
		if !ok {
			continue
		}
		reverted, err := q.revert(ctx, connID, now)
		unlock()
		if err != nil {
			glog.Warningf("revert connection %s: %v", connID, err)
			errs = append(errs, fmt.Errorf("connection %s: %w", connID, err))
			continue
		}
		n += reverted
	}
	q.metrics.RevertedTotal.Add(float64(n))
	return n, errors.Join(errs...)
}

func (q *Queue) revert(ctx context.Context, connID string, now time.Time) (int, error) {
	all, err := q.store.FindByConnectionID(ctx, connID)
	if err != nil {
		return 0, err
	}
	var expired []*api.QueuedMessage
	for _, m := range all {
		if m.Expired(now) {
			m.State = api.Pending
			m.InFlightUntil = time.Time{}
			expired = append(expired, m)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	return len(expired), q.store.Update(ctx, expired...)
}
