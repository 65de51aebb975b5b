/*
Package wrapper is the bbolt implementation of the queue api.Store. Every
connection has its own bucket where the messages are keyed by the bucket
sequence, which keeps them in receipt order. Records are CBOR encoded.
*/
package wrapper

import (
	"context"
	"encoding/binary"
	"errors"
	"path/filepath"
	"sync"

	"github.com/findy-network/findy-didcomm/agent/storage/api"
	"github.com/fxamacker/cbor/v2"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	bolt "go.etcd.io/bbolt"
)

const level7 = 7

var (
	queueBucket = []byte("queue")
	msgBucket   = []byte("m")
	idxBucket   = []byte("i")
)

// ErrClosed is returned when the provider isn't initialized.
var ErrClosed = errors.New("storage provider closed")

type Config struct {
	FileName string
	FilePath string
}

// Filename returns the full name of the bolt file.
func (c Config) Filename() string {
	path := "."
	if c.FilePath != "" {
		path = c.FilePath
	}
	return filepath.Join(path, c.FileName+".bolt")
}

type StorageProvider struct {
	l sync.RWMutex

	conf Config
	db   *bolt.DB
}

var _ api.Store = (*StorageProvider)(nil)

func New(config Config) *StorageProvider {
	return &StorageProvider{conf: config}
}

// Init opens the bolt file and creates the root bucket.
func (s *StorageProvider) Init() (err error) {
	defer err2.Handle(&err, "storage open %s", s.conf.FileName)

	s.l.Lock()
	defer s.l.Unlock()

	if s.db != nil {
		glog.Warningf("skipping storage provider initialization for %s, already open", s.conf.FileName)
		return nil
	}

	db := try.To1(bolt.Open(s.conf.Filename(), 0600, nil))
	try.To(db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(queueBucket)
		return err
	}))
	s.db = db
	return nil
}

func (s *StorageProvider) ID() string {
	return s.conf.FileName
}

func (s *StorageProvider) Close() (err error) {
	defer err2.Handle(&err, "storage close")

	s.l.Lock()
	defer s.l.Unlock()

	if s.db == nil {
		glog.Warningf("skipping storage provider close for %s, already closed", s.conf.FileName)
		return nil
	}

	try.To(s.db.Close())
	s.db = nil
	return nil
}

func (s *StorageProvider) update(f func(root *bolt.Bucket) error) error {
	s.l.RLock()
	defer s.l.RUnlock()

	if s.db == nil {
		return ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return f(tx.Bucket(queueBucket))
	})
}

func (s *StorageProvider) view(f func(root *bolt.Bucket) error) error {
	s.l.RLock()
	defer s.l.RUnlock()

	if s.db == nil {
		return ErrClosed
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return f(tx.Bucket(queueBucket))
	})
}

// Save stores a new message at the tail of its connection's queue.
func (s *StorageProvider) Save(_ context.Context, msg *api.QueuedMessage) (err error) {
	defer err2.Handle(&err, "save %s", msg.ID)

	glog.V(level7).Infoln("StorageProvider::Save", s.ID(), msg.ConnectionID, msg.ID)

	return s.update(func(root *bolt.Bucket) (err error) {
		defer err2.Handle(&err)

		conn := try.To1(root.CreateBucketIfNotExists([]byte(msg.ConnectionID)))
		msgs := try.To1(conn.CreateBucketIfNotExists(msgBucket))
		idx := try.To1(conn.CreateBucketIfNotExists(idxBucket))

		if idx.Get([]byte(msg.ID)) != nil {
			return errors.New("duplicate message id")
		}
		seq := try.To1(msgs.NextSequence())
		key := seqKey(seq)
		try.To(msgs.Put(key, try.To1(cbor.Marshal(msg))))
		try.To(idx.Put([]byte(msg.ID), key))
		msg.Seq = seq
		return nil
	})
}

// FindByConnectionID returns the connection's messages in receipt order.
func (s *StorageProvider) FindByConnectionID(
	_ context.Context,
	connID string,
) (
	res []*api.QueuedMessage,
	err error,
) {
	defer err2.Handle(&err, "find %s", connID)

	try.To(s.view(func(root *bolt.Bucket) error {
		conn := root.Bucket([]byte(connID))
		if conn == nil {
			return nil
		}
		msgs := conn.Bucket(msgBucket)
		if msgs == nil {
			return nil
		}
		return msgs.ForEach(func(k, v []byte) error {
			m := new(api.QueuedMessage)
			if err := cbor.Unmarshal(v, m); err != nil {
				return err
			}
			m.Seq = binary.BigEndian.Uint64(k)
			res = append(res, m)
			return nil
		})
	}))
	return res, nil
}

// Update overwrites the given messages in one transaction. All of them must
// exist.
func (s *StorageProvider) Update(_ context.Context, msgs ...*api.QueuedMessage) (err error) {
	defer err2.Handle(&err, "update")

	return s.update(func(root *bolt.Bucket) (err error) {
		defer err2.Handle(&err)

		for _, m := range msgs {
			b, key := lookup(root, m.ConnectionID, m.ID)
			if b == nil {
				return api.ErrNotFound
			}
			try.To(b.Put(key, try.To1(cbor.Marshal(m))))
		}
		return nil
	})
}

// Delete removes the messages by their IDs. Unknown IDs are skipped, n tells
// how many were removed.
func (s *StorageProvider) Delete(_ context.Context, connID string, ids []string) (n int, err error) {
	defer err2.Handle(&err, "delete %s", connID)

	try.To(s.update(func(root *bolt.Bucket) (err error) {
		defer err2.Handle(&err)

		for _, id := range ids {
			b, key := lookup(root, connID, id)
			if b == nil {
				continue
			}
			try.To(b.Delete(key))
			idx := root.Bucket([]byte(connID)).Bucket(idxBucket)
			try.To(idx.Delete([]byte(id)))
			n++
		}
		return nil
	}))
	glog.V(level7).Infoln("StorageProvider::Delete", s.ID(), connID, n)
	return n, nil
}

// ConnectionIDs lists the connections which have a queue bucket.
func (s *StorageProvider) ConnectionIDs(_ context.Context) (ids []string, err error) {
	defer err2.Handle(&err, "connection ids")

	try.To(s.view(func(root *bolt.Bucket) error {
		return root.ForEach(func(k, v []byte) error {
			if v == nil { // nested bucket
				ids = append(ids, string(k))
			}
			return nil
		})
	}))
	return ids, nil
}

func lookup(root *bolt.Bucket, connID, id string) (msgs *bolt.Bucket, key []byte) {
	conn := root.Bucket([]byte(connID))
	if conn == nil {
		return nil, nil
	}
	idx := conn.Bucket(idxBucket)
	if idx == nil {
		return nil, nil
	}
	key = idx.Get([]byte(id))
	if key == nil {
		return nil, nil
	}
	// bolt's returned slices are valid only inside the tx
	return conn.Bucket(msgBucket), append([]byte(nil), key...)
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
