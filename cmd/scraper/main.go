// Command scraper runs one pipeline pass from the terminal and exits. It is
// the manual counterpart to the server's scheduler, useful for cron jobs and
// for testing a new search without leaving a daemon running.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"jobradar/internal/app"
	"jobradar/internal/config"
	"jobradar/internal/domain/job"
	"jobradar/internal/pipeline"
)

func main() {
	var (
		query        = flag.String("query", "", "ad-hoc search keywords (skips stored configs)")
		location     = flag.String("location", "Remote", "location for -query")
		sources      = flag.String("sources", "", "comma-separated boards (default: all)")
		descriptions = flag.Bool("descriptions", false, "backfill full descriptions instead of scraping")
		limit        = flag.Int("limit", 50, "max listings for -descriptions")
		stats        = flag.Bool("stats", false, "print job counts and exit")
	)
	flag.Parse()

	// the CLI never binds a port, so don't require one
	if os.Getenv("HTTP_PORT") == "" {
		os.Setenv("HTTP_PORT", "0")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.Scheduler.Enabled = false

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer container.Close()

	switch {
	case *stats:
		counts, err := container.Jobs.Counts(ctx)
		if err != nil {
			log.Fatalf("stats: %v", err)
		}
		fmt.Printf("jobs=%d sources=%d applied=%d edited=%d full_descriptions=%d\n",
			counts.Total, counts.Sources, counts.Applied, counts.Edited, counts.FullDescriptions)

	case *descriptions:
		summary, err := container.Pipeline.FetchDescriptions(ctx, *limit)
		if err != nil {
			log.Fatalf("descriptions: %v", err)
		}
		fmt.Printf("candidates=%d updated=%d missed=%d\n", summary.Candidates, summary.Updated, summary.Missed)

	default:
		boards := splitSources(*sources)
		if *query != "" {
			summary, err := runAdHoc(ctx, container, *query, *location, boards)
			if err != nil {
				log.Fatalf("scrape: %v", err)
			}
			printScrapeSummary(summary)
			return
		}
		summary, err := container.Pipeline.RunScrape(ctx, pipeline.ScrapeParams{Sources: boards})
		if err != nil {
			log.Fatalf("scrape: %v", err)
		}
		printScrapeSummary(summary)
	}
}

// runAdHoc scrapes a one-off query without touching stored search configs.
func runAdHoc(ctx context.Context, c *app.Container, query, location string, sources []string) (pipeline.ScrapeSummary, error) {
	cfg := job.SearchConfig{Name: "ad-hoc", Keywords: query, Location: location, Enabled: true}
	return c.Pipeline.RunScrapeConfig(ctx, cfg, sources)
}

func printScrapeSummary(s pipeline.ScrapeSummary) {
	fmt.Printf("runs=%d found=%d added=%d updated=%d skipped=%d failed=%d\n",
		s.Runs, s.Found, s.Added, s.Updated, s.Skipped, s.Failed)
}

func splitSources(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
