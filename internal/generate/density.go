package generate

import (
	"fmt"
	"strings"

	"github.com/inkmill/inkmill/internal/database"
)

// densityFloor is the fraction of the target below which leveling kicks in.
// Bodies already at 80% of target are left untouched.
const densityFloor = 0.8

// LevelDensity nudges the body toward the target keyword density for each
// topic. When a topic phrase appears too rarely it appends a short mention to
// paragraphs that do not already contain it, up to maxInsertions per topic.
// Headings and very short paragraphs are never touched, and a second pass
// over already-leveled text is a no-op because mentioned paragraphs are
// skipped and density has risen past the floor.
func LevelDensity(body string, topics []database.Topic, targetPct float64, maxInsertions int) string {
	if targetPct <= 0 || maxInsertions <= 0 {
		return body
	}
	totalWords := wordCount(body)
	if totalWords == 0 {
		return body
	}

	paragraphs := strings.Split(body, "\n\n")
	for _, topic := range topics {
		phrase := strings.TrimSpace(topic.Text)
		if phrase == "" {
			continue
		}
		if phraseDensity(body, phrase, totalWords) >= targetPct*densityFloor {
			continue
		}

		inserted := 0
		for i, p := range paragraphs {
			if inserted >= maxInsertions {
				break
			}
			if !eligibleParagraph(p, phrase) {
				continue
			}
			paragraphs[i] = p + " " + mentionSentence(phrase)
			inserted++
		}
		body = strings.Join(paragraphs, "\n\n")
	}
	return body
}

// phraseDensity returns occurrences per hundred words, case-insensitive.
func phraseDensity(body, phrase string, totalWords int) float64 {
	n := strings.Count(strings.ToLower(body), strings.ToLower(phrase))
	return float64(n) / float64(totalWords) * 100
}

func eligibleParagraph(p, phrase string) bool {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return false
	}
	if wordCount(trimmed) < 40 {
		return false
	}
	return !strings.Contains(strings.ToLower(trimmed), strings.ToLower(phrase))
}

func mentionSentence(phrase string) string {
	return fmt.Sprintf("All of this matters in practice when working with %s.", phrase)
}
