package listener

import "time"

// backoff doubles from base up to max. reset returns it to base once a
// connection has been established.
type backoff struct {
	base, max, next time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	if base <= 0 {
		base = 2 * time.Second
	}
	if max < base {
		max = base
	}
	return &backoff{base: base, max: max, next: base}
}

func (b *backoff) delay() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

func (b *backoff) reset() { b.next = b.base }
