package suspect

import "time"

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithMarkers replaces the automation marker list.
func WithMarkers(markers []string) Option {
	return func(d *Detector) {
		if len(markers) > 0 {
			d.markers = markers
		}
	}
}

// WithMinInterval sets the floor between submissions from one client.
func WithMinInterval(interval time.Duration) Option {
	return func(d *Detector) {
		if interval > 0 {
			d.minInterval = interval
		}
	}
}

// WithSeedWindow sets the coincidence window between a submission and
// its subject's creation time.
func WithSeedWindow(window time.Duration) Option {
	return func(d *Detector) {
		if window > 0 {
			d.seedWindow = window
		}
	}
}
