package process

import "sync"

// CompletionSignal marks that one aspect of an invocation has finished:
// the process exited, or a captured stream reached end-of-stream.
//
// A signal resolves at most once. Later Resolve calls are no-ops.
type CompletionSignal struct {
	once sync.Once
	done chan struct{}
}

// NewCompletionSignal returns an unresolved signal.
func NewCompletionSignal() *CompletionSignal {
	return &CompletionSignal{done: make(chan struct{})}
}

// Resolve marks the signal finished. It reports whether this call did it.
func (s *CompletionSignal) Resolve() (first bool) {
	s.once.Do(func() {
		close(s.done)
		first = true
	})
	return first
}

// Done returns a channel closed once the signal resolves.
func (s *CompletionSignal) Done() <-chan struct{} {
	return s.done
}

// Resolved reports whether the signal has resolved.
func (s *CompletionSignal) Resolved() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// AllResolved returns a channel closed once every signal has resolved.
// The helper goroutine exits when the last signal does.
func AllResolved(signals ...*CompletionSignal) <-chan struct{} {
	all := make(chan struct{})
	go func() {
		for _, s := range signals {
			<-s.done
		}
		close(all)
	}()
	return all
}
