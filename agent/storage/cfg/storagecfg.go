// Package cfg keeps the opened queue storages so that every bolt file is
// opened only once per process even when many tenants share it.
package cfg

import (
	"sync"

	"github.com/findy-network/findy-didcomm/agent/storage/wrapper"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

type StorageInfo struct {
	storage *wrapper.StorageProvider
	refs    int
}

type InfoMap map[string]*StorageInfo

var storages = struct {
	InfoMap
	sync.Mutex
}{
	InfoMap: make(InfoMap),
}

// Open returns the storage of the config, opening the file on the first
// call. Every Open must be paired with Close.
func Open(c wrapper.Config) (s *wrapper.StorageProvider, err error) {
	defer err2.Handle(&err, "open storage from cfg")

	storages.Lock()
	defer storages.Unlock()

	id := c.Filename()
	if info, exist := storages.InfoMap[id]; exist {
		glog.V(5).Infoln("open existing storage:", id)
		info.refs++
		return info.storage, nil
	}

	st := wrapper.New(c)
	try.To(st.Init())
	glog.V(5).Infoln("successful first time opening storage:", id)

	storages.InfoMap[id] = &StorageInfo{storage: st, refs: 1}
	return st, nil
}

// Close releases the reference and closes the file with the last one.
func Close(c wrapper.Config) (err error) {
	defer err2.Handle(&err, "close storage from cfg")

	storages.Lock()
	defer storages.Unlock()

	id := c.Filename()
	info, exist := storages.InfoMap[id]
	if !exist {
		glog.Warningf("close called but storage (%s) not open!", id)
		return nil
	}
	info.refs--
	if info.refs > 0 {
		return nil
	}
	try.To(info.storage.Close())
	delete(storages.InfoMap, id)
	glog.V(5).Infoln("successful closing storage:", id)
	return nil
}
