package session

// State is the authentication state of the process-wide session.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateRefreshing      State = "refreshing"
)

// validTransitions captures the allowed state changes. Staying in the same
// state is always allowed (logout while logged out is a no-op).
var validTransitions = map[State]map[State]struct{}{
	StateUnauthenticated: {
		StateAuthenticating: {},
	},
	StateAuthenticating: {
		StateAuthenticated:   {},
		StateUnauthenticated: {},
	},
	StateAuthenticated: {
		StateRefreshing:      {},
		StateAuthenticated:   {},
		StateUnauthenticated: {},
	},
	StateRefreshing: {
		StateAuthenticated:   {},
		StateUnauthenticated: {},
	},
}

func canTransition(from, to State) bool {
	if from == to {
		return true
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	_, exists := allowed[to]
	return exists
}
