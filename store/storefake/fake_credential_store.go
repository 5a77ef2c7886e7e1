package storefake

import (
	"sync"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/store"
)

var _ store.Store = (*FakeCredentialStore)(nil)

type FakeCredentialStore struct {
	values map[string]string
	lock   sync.RWMutex

	// Failure toggles, settable from tests
	FailReads  bool
	FailWrites bool
}

func NewFakeCredentialStore() *FakeCredentialStore {
	return &FakeCredentialStore{
		values: make(map[string]string),
	}
}

func (cs *FakeCredentialStore) Get(key string) (string, error) {
	cs.lock.RLock()
	defer cs.lock.RUnlock()

	if cs.FailReads {
		return "", apperrors.ErrStoreUnavailable
	}

	value, ok := cs.values[key]
	if !ok {
		return "", apperrors.ErrKeyNotFound
	}
	return value, nil
}

func (cs *FakeCredentialStore) Set(key, value string) error {
	cs.lock.Lock()
	defer cs.lock.Unlock()

	if cs.FailWrites {
		return apperrors.ErrStoreUnavailable
	}

	cs.values[key] = value
	return nil
}

func (cs *FakeCredentialStore) Delete(key string) error {
	cs.lock.Lock()
	defer cs.lock.Unlock()

	if cs.FailWrites {
		return apperrors.ErrStoreUnavailable
	}

	delete(cs.values, key)
	return nil
}

// Len reports how many slots currently hold a value.
func (cs *FakeCredentialStore) Len() int {
	cs.lock.RLock()
	defer cs.lock.RUnlock()
	return len(cs.values)
}
