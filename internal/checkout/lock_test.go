package checkout

import (
	"sync"
	"testing"
)

// 同一キーのロックが排他的であることを検証
func TestTouristLocker_SameKey_Serializes(t *testing.T) {
	l := newTouristLocker()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock(1)
			counter++
			l.Unlock(1)
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("counter = %d, want 100", counter)
	}
}

// 異なるキー同士はブロックしないことを検証
func TestTouristLocker_DifferentKeys_DoNotBlock(t *testing.T) {
	l := newTouristLocker()

	l.Lock(1)
	done := make(chan struct{})
	go func() {
		l.Lock(2)
		l.Unlock(2)
		close(done)
	}()
	<-done
	l.Unlock(1)
}

// 解放後にエントリがマップから削除されることを検証
func TestTouristLocker_CleansUpEntries(t *testing.T) {
	l := newTouristLocker()

	l.Lock(1)
	l.Unlock(1)

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.locks) != 0 {
		t.Errorf("残存エントリ数 = %d, want 0", len(l.locks))
	}
}
