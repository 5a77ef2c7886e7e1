package store

// Storage slot names used by the session manager. The three slots are
// written and cleared together; the access token slot is always written
// last and deleted first so its absence is a safe "not logged in" signal.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserData     = "user_data"
)

// Store is persistent key-value storage for credentials and the cached
// user profile. Implementations must be idempotent: Set overwrites,
// Delete of a missing key is a no-op, Get of a missing key returns
// errors.ErrKeyNotFound. An unreachable backend surfaces
// errors.ErrStoreUnavailable.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}
