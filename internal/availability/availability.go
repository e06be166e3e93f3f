// Package availability decides which collectors can run before anything is
// fetched. The probe is pure: it only inspects declared credential
// requirements against a lookup function, it never touches the network.
package availability

import (
	"github.com/moltpulse/moltpulse/internal/pulse"
)

// LookupFunc resolves a credential name to its value.
type LookupFunc func(name string) (string, bool)

// Status is the probe result for one collector.
type Status struct {
	Collector   string   `json:"collector"`
	Type        string   `json:"type"`
	Available   bool     `json:"available"`
	MissingKeys []string `json:"missing_keys,omitempty"`
	KeyInUse    string   `json:"key_in_use,omitempty"`
}

// Probe evaluates every collector's credential declaration. A collector whose
// RequiresAny is true needs just one of its declared keys; KeyInUse records
// which one won, honoring declaration order. Otherwise all declared keys must
// be present. A collector declaring no keys is keyless and always available.
func Probe(collectors []pulse.Collector, lookup LookupFunc) []Status {
	statuses := make([]Status, 0, len(collectors))
	for _, c := range collectors {
		statuses = append(statuses, probeOne(c, lookup))
	}
	return statuses
}

func probeOne(c pulse.Collector, lookup LookupFunc) Status {
	s := Status{
		Collector: c.Name(),
		Type:      c.Type(),
	}

	required := c.RequiredCredentials()
	if len(required) == 0 {
		s.Available = true
		return s
	}

	if c.RequiresAny() {
		for _, key := range required {
			if _, ok := lookup(key); ok {
				s.Available = true
				s.KeyInUse = key
				return s
			}
		}
		s.MissingKeys = required
		return s
	}

	for _, key := range required {
		if _, ok := lookup(key); !ok {
			s.MissingKeys = append(s.MissingKeys, key)
		}
	}
	s.Available = len(s.MissingKeys) == 0
	if s.Available {
		s.KeyInUse = required[0]
	}
	return s
}

// Available filters statuses down to the runnable collectors' names.
func Available(statuses []Status) []string {
	var names []string
	for _, s := range statuses {
		if s.Available {
			names = append(names, s.Collector)
		}
	}
	return names
}
