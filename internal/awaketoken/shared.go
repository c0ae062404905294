package awaketoken

// SharedAwakeToken extends AwakeToken with an immutable payload that
// observers can read once the token is awoken. It is used to hand a
// connection object out of an Establishing state to every initiator that
// raced to create it.
type SharedAwakeToken[T any] struct {
	token   *AwakeToken
	payload T
}

// NewSharedAwakeToken constructs a SharedAwakeToken carrying payload. The
// payload is fixed at construction and must not be mutated afterward by the
// caller; readers only observe it after Awake.
func NewSharedAwakeToken[T any](payload T) *SharedAwakeToken[T] {
	return &SharedAwakeToken[T]{token: New(), payload: payload}
}

// Token returns the underlying AwakeToken for registering observers.
func (s *SharedAwakeToken[T]) Token() *AwakeToken {
	return s.token
}

// Awake wakes every observer waiting on Token().
func (s *SharedAwakeToken[T]) Awake() {
	s.token.Awake()
}

// Payload returns the shared value. Only meaningful to a caller that has
// observed the token Awoken; reading it beforehand races with nothing (the
// value is set at construction) but is meaningless before handoff completes.
func (s *SharedAwakeToken[T]) Payload() T {
	return s.payload
}
