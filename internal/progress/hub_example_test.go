package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type pageCounter struct {
	pages, candidates int
}

func (c *pageCounter) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		if evt.Stage == StagePageFetched {
			c.pages++
			c.candidates += evt.Candidates
		}
	}
	return nil
}

func (c *pageCounter) Close(context.Context) error { return nil }

// ExampleHub shows a sink tallying crawled pages for one discovery run.
func ExampleHub() {
	counter := &pageCounter{}
	hub := NewHub(Config{BatchWait: time.Minute}, counter)

	run := UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	ts := time.Unix(0, 0)
	hub.Emit(Event{RunID: run, TS: ts, Stage: StageRunStart})
	for i, found := range []int{2, 0, 1} {
		hub.Emit(Event{
			RunID:       run,
			TS:          ts,
			Stage:       StagePageFetched,
			Site:        "acme.com",
			URL:         fmt.Sprintf("https://acme.com/p%d", i),
			StatusClass: Status2xx,
			Candidates:  found,
		})
	}
	hub.Emit(Event{RunID: run, TS: ts, Stage: StageRunDone, Candidates: 3})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("pages=%d candidates=%d\n", counter.pages, counter.candidates)
	// Output:
	// pages=3 candidates=3
}
