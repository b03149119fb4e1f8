package discover

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/inkmill/inkmill/internal/config"
)

const (
	maxPerFeed = 20

	// Defaults for imported candidates. Real demand and competition numbers
	// come from operator edits or later enrichment; imports just seed the
	// pool with middling assumptions.
	defaultCompetition = 50
)

// Store is the persistence surface the importer needs.
type Store interface {
	InsertTopic(text, category string, demandVolume, competition, trendScore int, unitValue float64) (int64, error)
}

// Stats summarizes one import pass.
type Stats struct {
	Feeds      int
	Seen       int
	Imported   int
	Duplicates int
}

// Importer pulls candidate topics out of configured RSS/Atom feeds. Entry
// titles become topic texts; the feed's category tags every candidate.
type Importer struct {
	store         Store
	feeds         []config.Feed
	defaultDemand int
	parser        *gofeed.Parser
}

// NewImporter creates a feed importer.
func NewImporter(store Store, cfg config.Discovery) *Importer {
	return &Importer{
		store:         store,
		feeds:         cfg.Feeds,
		defaultDemand: cfg.DefaultDemand,
		parser:        gofeed.NewParser(),
	}
}

// Run imports candidates from every configured feed. A failing feed is logged
// and skipped; the pass continues.
func (im *Importer) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	for _, fc := range im.feeds {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		feed, err := im.parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			log.Printf("Failed to parse feed %s: %v", fc.URL, err)
			continue
		}
		stats.Feeds++

		imported := 0
		for _, item := range feed.Items {
			if imported >= maxPerFeed {
				break
			}
			text := candidateText(item)
			if text == "" {
				continue
			}
			stats.Seen++

			id, err := im.store.InsertTopic(text, fc.Category, im.defaultDemand,
				defaultCompetition, trendScore(item), 0)
			if err != nil {
				log.Printf("Failed to store candidate %q: %v", text, err)
				continue
			}
			if id == 0 {
				stats.Duplicates++
				continue
			}
			stats.Imported++
			imported++
		}
		log.Printf("Imported %d candidates from %s", imported, feedName(fc))
	}
	return stats, nil
}

// candidateText normalizes an entry title into a topic text.
func candidateText(item *gofeed.Item) string {
	title := strings.Join(strings.Fields(item.Title), " ")
	if len(title) < 4 || len(title) > 200 {
		return ""
	}
	return title
}

// trendScore rates how current an entry is: fresher entries make hotter
// candidates.
func trendScore(item *gofeed.Item) int {
	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	if published == nil {
		return 40
	}

	age := time.Since(*published)
	switch {
	case age < 48*time.Hour:
		return 80
	case age < 7*24*time.Hour:
		return 60
	default:
		return 40
	}
}

func feedName(fc config.Feed) string {
	if fc.Name != "" {
		return fc.Name
	}
	return fc.URL
}
