package enclave

import (
	"errors"

	bolt "go.etcd.io/bbolt"
)

// ErrClosed is returned when the sealed box isn't open.
var ErrClosed = errors.New("enclave closed")

func (e *Enclave) put(index string, value []byte) error {
	e.lk.RLock()
	defer e.lk.RUnlock()

	if e.db == nil {
		return ErrClosed
	}
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(keyBucket)).Put([]byte(index), value)
	})
}

// get returns nil value without error when the index doesn't exist.
func (e *Enclave) get(index string) (value []byte, err error) {
	e.lk.RLock()
	defer e.lk.RUnlock()

	if e.db == nil {
		return nil, ErrClosed
	}
	err = e.db.View(func(tx *bolt.Tx) error {
		d := tx.Bucket([]byte(keyBucket)).Get([]byte(index))
		if d != nil {
			value = append([]byte(nil), d...)
		}
		return nil
	})
	return value, err
}
