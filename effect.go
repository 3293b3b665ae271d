package auth

// Effect is the outcome of a best-effort side effect. Callers report it and
// drop it; a failed effect never fails the primary operation.
type Effect struct {
	Name string
	Err  error
}

// Failed reports whether the side effect did not complete.
func (e Effect) Failed() bool {
	return e.Err != nil
}

// Report logs a failed effect at warn level and returns the effect.
func (e Effect) Report(logger Logger) Effect {
	if e.Err == nil || logger == nil {
		return e
	}
	logger.Warn("best-effort side effect failed", "effect", e.Name, "error", e.Err)
	return e
}

func effectOf(name string, err error) Effect {
	return Effect{Name: name, Err: err}
}
