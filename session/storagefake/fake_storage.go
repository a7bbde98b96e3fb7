package storagefake

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/go-portal-client/session"
)

var _ session.Storage = (*FakeStorage)(nil)

// FakeStorage is an in-memory session.Storage. Failures can be injected per
// entry name to exercise partial-write paths.
type FakeStorage struct {
	entries map[string]http.Cookie
	failSet map[string]error
	failDel map[string]error
	failGet map[string]error
	sets    int
	nowTime func() time.Time
	lock    sync.RWMutex
}

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{
		entries: make(map[string]http.Cookie),
		failSet: make(map[string]error),
		failDel: make(map[string]error),
		failGet: make(map[string]error),
		nowTime: time.Now,
	}
}

// WithNowTime overrides the clock used for expiry checks.
func (fs *FakeStorage) WithNowTime(now func() time.Time) *FakeStorage {
	fs.nowTime = now
	return fs
}

func (fs *FakeStorage) FailSet(name string, err error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.failSet[name] = err
}

func (fs *FakeStorage) FailDelete(name string, err error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.failDel[name] = err
}

func (fs *FakeStorage) FailGet(name string, err error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.failGet[name] = err
}

// Reset removes all injected failures.
func (fs *FakeStorage) Reset() {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.failSet = make(map[string]error)
	fs.failDel = make(map[string]error)
	fs.failGet = make(map[string]error)
}

func (fs *FakeStorage) Get(_ context.Context, name string) (*http.Cookie, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	if err := fs.failGet[name]; err != nil {
		return nil, err
	}
	c, ok := fs.entries[name]
	if !ok || session.Expired(&c, fs.nowTime()) {
		return nil, session.ErrNotFound
	}
	return &c, nil
}

func (fs *FakeStorage) Set(_ context.Context, cookie *http.Cookie) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if err := fs.failSet[cookie.Name]; err != nil {
		return err
	}
	fs.sets++
	fs.entries[cookie.Name] = *cookie
	return nil
}

func (fs *FakeStorage) Delete(_ context.Context, name string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if err := fs.failDel[name]; err != nil {
		return err
	}
	delete(fs.entries, name)
	return nil
}

// Entry returns the raw stored entry, ignoring expiry and injected failures.
func (fs *FakeStorage) Entry(name string) (http.Cookie, bool) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	c, ok := fs.entries[name]
	return c, ok
}

// Len returns the number of stored entries.
func (fs *FakeStorage) Len() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return len(fs.entries)
}

// Sets returns the number of successful writes.
func (fs *FakeStorage) Sets() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.sets
}
