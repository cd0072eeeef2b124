package dupguard

import "time"

// Option applies a configuration option to the Guard.
type Option func(*Guard)

// WithCooldown sets the delay before an identity may revise its rating
// for a subject.
func WithCooldown(cooldown time.Duration) Option {
	return func(g *Guard) {
		if cooldown > 0 {
			g.cooldown = cooldown
		}
	}
}
