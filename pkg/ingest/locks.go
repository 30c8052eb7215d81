package ingest

import "sync"

// userLocks serializes mutations per user. Entries are reference counted and
// dropped once no goroutine holds or waits for them.
type userLocks struct {
	mu sync.Mutex
	m  map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// lock blocks until the caller owns user's lock and returns the release func.
func (l *userLocks) lock(user string) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*userLock)
	}
	ul, ok := l.m[user]
	if !ok {
		ul = &userLock{}
		l.m[user] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, user)
		}
		l.mu.Unlock()
	}
}

// held returns how many users currently have a lock entry.
func (l *userLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// locker adapts one user's lock to sync.Locker. It must be locked and
// unlocked by one goroutine at a time.
func (l *userLocks) locker(user string) sync.Locker {
	return &userLocker{locks: l, user: user}
}

type userLocker struct {
	locks  *userLocks
	user   string
	unlock func()
}

func (u *userLocker) Lock()   { u.unlock = u.locks.lock(u.user) }
func (u *userLocker) Unlock() { u.unlock() }
