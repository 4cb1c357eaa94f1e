package router

// loopDetector keeps a bounded window of recent (route, result digest) pairs
// and reports when the same pair repeats past the threshold, meaning the
// supervisor keeps re-selecting a route that produces no new information.
type loopDetector struct {
	window    int
	threshold int
	entries   []loopEntry
}

type loopEntry struct {
	route  string
	digest string
}

func newLoopDetector(window, threshold int) *loopDetector {
	if window < 1 {
		window = 1
	}
	if threshold < 2 {
		threshold = 2
	}
	return &loopDetector{window: window, threshold: threshold}
}

// observe records one executed selection and reports whether the loop
// threshold has been reached within the window.
func (d *loopDetector) observe(route, digest string) bool {
	d.entries = append(d.entries, loopEntry{route: route, digest: digest})
	if len(d.entries) > d.window {
		d.entries = d.entries[len(d.entries)-d.window:]
	}

	count := 0
	for _, e := range d.entries {
		if e.route == route && e.digest == digest {
			count++
		}
	}
	return count >= d.threshold
}
