// The main package for the hrfinder executable.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, a synchronous
//     discover endpoint and queued runs. Every request is recorded as a run in
//     the RunStore (memory or Postgres).
//   - Engine: internal/discovery.Engine resolves the company domain through a
//     rendered web search, then runs pattern inference, the site crawl and
//     the name search in sequence, keeping the first finding per address.
//   - Crawl: internal/sitecrawl walks the company site breadth-first on the
//     colly fetcher with a bounded errgroup pool, a page cap and a politeness
//     pause between batches. Pages that look client-rendered can be re-fetched
//     through chromedp.
//   - Fanout: finished reports are archived (memory/local/GCS) and a
//     completion notification is published (memory/Pub/Sub) when configured.
//     Progress events are batched to zap and Prometheus sinks.
//
// Quick checklist:
//   - Configure via hrfinder.yaml or HRFINDER_* env vars; PORT overrides the
//     listen port on Cloud Run.
//   - Run the service: go run . serve --config hrfinder.yaml
//   - One-shot lookup: go run . discover --name "Jane Doe" --company "Acme"
package main

import (
	"github.com/JakeFAU/hr-contact-discovery/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
