package utils

import (
	"sync"
	"testing"

	"github.com/lainio/err2/assert"
)

func TestKeyedMutex_TryLock(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	var m KeyedMutex
	unlock := m.Lock("a")

	_, ok := m.TryLock("a")
	assert.ThatNot(ok)

	unlockB, ok := m.TryLock("b")
	assert.That(ok)
	unlockB()

	unlock()
	unlock2, ok := m.TryLock("a")
	assert.That(ok)
	unlock2()
	assert.Equal(m.Len(), 0)
}

func TestKeyedMutex_Serializes(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	var (
		m       KeyedMutex
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("thread")
			defer unlock()
			c := counter
			counter = c + 1
		}()
	}
	wg.Wait()
	assert.Equal(counter, 50)
	assert.Equal(m.Len(), 0)
}
