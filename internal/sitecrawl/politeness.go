package sitecrawl

import (
	"context"
	"net/http"
	"time"
)

// refusalGuard counts responses showing the site is turning the crawler
// away. Only the crawl loop touches it.
type refusalGuard struct {
	limit int
	count int
}

func newRefusalGuard(limit int) *refusalGuard {
	if limit <= 0 {
		limit = DefaultMaxRefusals
	}
	return &refusalGuard{limit: limit}
}

// observe records status and returns true once the limit is reached.
func (g *refusalGuard) observe(status int) bool {
	if status == http.StatusForbidden || status == http.StatusTooManyRequests {
		g.count++
	}
	return g.count >= g.limit
}

// pauseController abstracts how the crawler waits between batches.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration)
}

type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
