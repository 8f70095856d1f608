package cloud

import (
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

// keyGenerator produces Idempotency-Key values of the form "<pid>-<ns>".
// The nanosecond part comes from the monotonic clock and never repeats
// within a process.
type keyGenerator struct {
	pid   string
	start time.Time
	last  atomic.Int64
}

func newKeyGenerator() *keyGenerator {
	return &keyGenerator{
		pid:   strconv.Itoa(os.Getpid()),
		start: time.Now(),
	}
}

func (g *keyGenerator) next() string {
	now := time.Since(g.start).Nanoseconds()
	for {
		last := g.last.Load()
		if now <= last {
			now = last + 1
		}
		if g.last.CompareAndSwap(last, now) {
			break
		}
	}
	return g.pid + "-" + strconv.FormatInt(now, 10)
}
