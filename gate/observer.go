package gate

// Evaluation is one authorization decision as seen by observers.
type Evaluation struct {
	Ability   string
	Allowed   bool
	Principal Principal
	Payload   any
}

// Observer receives every evaluation. Observers run synchronously on the
// authorizing goroutine and must be fast.
type Observer interface {
	Observe(evt Evaluation)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(evt Evaluation)

// Observe implements Observer.
func (f ObserverFunc) Observe(evt Evaluation) { f(evt) }
