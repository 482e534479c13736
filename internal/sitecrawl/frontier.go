package sitecrawl

// frontier tracks the breadth-first crawl state. It is owned by the
// coordinating goroutine and is not safe for concurrent use.
type frontier struct {
	queue   []string
	seen    map[string]struct{}
	visited map[string]struct{}
}

func newFrontier(seed string) *frontier {
	f := &frontier{
		seen:    make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
	f.enqueue(seed)
	return f
}

// enqueue adds url unless it was ever queued before.
func (f *frontier) enqueue(url string) bool {
	if url == "" {
		return false
	}
	if _, ok := f.seen[url]; ok {
		return false
	}
	f.seen[url] = struct{}{}
	f.queue = append(f.queue, url)
	return true
}

// next removes up to limit URLs from the head of the queue and marks them
// visited.
func (f *frontier) next(limit int) []string {
	if limit <= 0 || len(f.queue) == 0 {
		return nil
	}
	if limit > len(f.queue) {
		limit = len(f.queue)
	}
	batch := append([]string(nil), f.queue[:limit]...)
	f.queue = f.queue[limit:]
	for _, u := range batch {
		f.visited[u] = struct{}{}
	}
	return batch
}

func (f *frontier) pending() int {
	return len(f.queue)
}

func (f *frontier) visitedCount() int {
	return len(f.visited)
}
