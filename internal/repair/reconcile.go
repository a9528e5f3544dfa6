package repair

// Observation is what one mechanism returned for a key during a read.
type Observation struct {
	Mechanism string
	Value     string
	Found     bool
}

// Reconcile returns, in observation order, the mechanisms whose observation
// is missing or differs from winner. Each mechanism is listed at most once.
func Reconcile(winner string, observations []Observation) []string {
	stale := make([]string, 0)
	seen := make(map[string]struct{}, len(observations))

	for _, obs := range observations {
		if _, dup := seen[obs.Mechanism]; dup {
			continue
		}
		seen[obs.Mechanism] = struct{}{}

		if !obs.Found || obs.Value != winner {
			stale = append(stale, obs.Mechanism)
		}
	}

	return stale
}
