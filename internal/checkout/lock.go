package checkout

import "sync"

// touristLocker はツーリストIDごとの排他ロックを提供する。
// 同一ツーリストのチェックアウトを直列化し、二重決済を防ぐ。
// 異なるツーリスト同士は互いにブロックしない。
type touristLocker struct {
	mu    sync.Mutex
	locks map[int64]*touristLock
}

type touristLock struct {
	mu   sync.Mutex
	refs int
}

func newTouristLocker() *touristLocker {
	return &touristLocker{locks: make(map[int64]*touristLock)}
}

// Lock は指定ツーリストのロックを獲得する。
func (l *touristLocker) Lock(touristID int64) {
	l.mu.Lock()
	lock, ok := l.locks[touristID]
	if !ok {
		lock = &touristLock{}
		l.locks[touristID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
}

// Unlock は指定ツーリストのロックを解放する。
// 待機者がいなければエントリをマップから削除し、メモリリークを防ぐ。
func (l *touristLocker) Unlock(touristID int64) {
	l.mu.Lock()
	lock := l.locks[touristID]
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, touristID)
	}
	l.mu.Unlock()

	lock.mu.Unlock()
}
