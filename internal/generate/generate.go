package generate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/inkmill/inkmill/internal/budget"
	"github.com/inkmill/inkmill/internal/database"
	"github.com/inkmill/inkmill/internal/textgen"
)

// ErrEmptyResult means a job produced no usable content at all. The schedule
// run records it as a failure and no artifact is saved.
var ErrEmptyResult = errors.New("generation produced no usable content")

// SegmentKind identifies one bounded unit of generation within a job.
type SegmentKind string

const (
	SegmentDirect     SegmentKind = "direct"
	SegmentOutline    SegmentKind = "outline"
	SegmentSection    SegmentKind = "section"
	SegmentConclusion SegmentKind = "conclusion"
)

// SegmentResult is the typed outcome of one generation call: either usable
// text with its billed usage, or a skipped segment with the reason. Skips are
// absorbed here and never bubble past the pipeline.
type SegmentResult struct {
	Kind    SegmentKind
	Title   string
	Text    string
	Usage   textgen.Usage
	Cost    float64
	Skipped bool
	Reason  string
}

// Result is the assembled output of one generation job.
type Result struct {
	Title    string
	Body     string
	Length   int // words
	Cost     float64
	Model    string
	Segments []SegmentResult
}

// Options tunes the pipeline. Zero values fall back to sane defaults in New.
type Options struct {
	SectionSize   int           // words per outline section
	SectionPause  time.Duration // pause between consecutive section calls
	Temperature   float64
	DensityTarget float64 // target keyword density, percent
	MaxInsertions int     // density leveling cap per topic
}

// defaultOutline substitutes for a failed or short outline call. The pipeline
// never aborts solely because outline generation failed.
var defaultOutline = []string{
	"Introduction",
	"Background",
	"Key Considerations",
	"Getting Started",
	"Common Pitfalls",
	"Practical Tips",
	"Advanced Topics",
	"Summary",
}

// Generator drives the external text service toward a target output length
// through repeated bounded calls.
type Generator struct {
	client textgen.Client
	prices budget.PriceTable
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a generator.
func New(client textgen.Client, prices budget.PriceTable, opts Options) *Generator {
	if opts.SectionSize <= 0 {
		opts.SectionSize = 5000
	}
	if opts.MaxInsertions <= 0 {
		opts.MaxInsertions = 3
	}
	return &Generator{
		client: client,
		prices: prices,
		opts:   opts,
		sleep:  sleepContext,
	}
}

// job carries the per-run state of one generation.
type job struct {
	model   string
	price   budget.ModelPrice
	topic   database.Topic
	minLen  int
	maxLen  int
	result  *Result
	parts   []string
	running int // words assembled so far
}

// Generate produces one long-form artifact for the given topics. The first
// topic is the primary subject. On cancellation mid-job the partial result is
// returned alongside the context error so completed, already-billed segments
// are not discarded.
func (g *Generator) Generate(ctx context.Context, topics []database.Topic, minLen, maxLen int, model string) (*Result, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("no topics to generate from")
	}
	price, ok := g.prices.Lookup(model)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", model)
	}

	j := &job{
		model:  model,
		price:  price,
		topic:  topics[0],
		minLen: minLen,
		maxLen: maxLen,
		result: &Result{Title: topics[0].Text, Model: model},
	}

	var err error
	if maxLen <= price.SingleCallLimit {
		err = g.generateDirect(ctx, j)
	} else {
		err = g.generateSegmented(ctx, j)
	}
	if err != nil {
		return j.result, err
	}

	if strings.TrimSpace(j.result.Body) == "" {
		return j.result, ErrEmptyResult
	}

	j.result.Body = LevelDensity(j.result.Body, topics, g.opts.DensityTarget, g.opts.MaxInsertions)
	j.result.Length = wordCount(j.result.Body)
	return j.result, nil
}

// generateDirect issues one call for the whole artifact.
func (g *Generator) generateDirect(ctx context.Context, j *job) error {
	prompt := fmt.Sprintf(directPrompt, j.topic.Text, j.minLen, j.maxLen)
	seg := g.call(ctx, j, SegmentDirect, j.topic.Text, prompt, j.maxLen)
	j.result.Segments = append(j.result.Segments, seg)
	if seg.Skipped {
		return ErrEmptyResult
	}
	j.result.Body = seg.Text
	j.result.Cost += seg.Cost
	return nil
}

// generateSegmented converges on the target length section by section:
// outline first, then sections in outline order until the running total
// reaches minLen, then a bounded conclusion.
func (g *Generator) generateSegmented(ctx context.Context, j *job) error {
	sections := int(math.Ceil(float64(j.maxLen) / float64(g.opts.SectionSize)))
	titles := g.requestOutline(ctx, j, sections)

	sectionWords := g.opts.SectionSize
	if sectionWords > j.maxLen {
		sectionWords = j.maxLen
	}

	for i, title := range titles {
		if j.running >= j.minLen {
			log.Printf("running length %d reached minimum %d, skipping %d remaining sections",
				j.running, j.minLen, len(titles)-i)
			break
		}

		// Pause between consecutive section calls; no pause before the
		// first and none after whatever turns out to be the last.
		if i > 0 {
			if err := g.sleep(ctx, g.opts.SectionPause); err != nil {
				return g.assemble(j, err)
			}
		}

		prompt := fmt.Sprintf(sectionPrompt, title, j.topic.Text, j.running, sectionWords)
		seg := g.call(ctx, j, SegmentSection, title, prompt, sectionWords)
		j.result.Segments = append(j.result.Segments, seg)
		if seg.Skipped {
			if ctx.Err() != nil {
				return g.assemble(j, ctx.Err())
			}
			continue
		}

		j.result.Cost += seg.Cost
		j.parts = append(j.parts, fmt.Sprintf("## %s\n\n%s", title, seg.Text))
		j.running = wordCount(strings.Join(j.parts, "\n\n"))
	}

	if j.running < j.maxLen {
		capWords := j.maxLen - j.running
		if capWords > 1000 {
			capWords = 1000
		}
		prompt := fmt.Sprintf(conclusionPrompt, j.topic.Text, capWords)
		seg := g.call(ctx, j, SegmentConclusion, "Conclusion", prompt, capWords)
		j.result.Segments = append(j.result.Segments, seg)
		if !seg.Skipped {
			j.result.Cost += seg.Cost
			j.parts = append(j.parts, fmt.Sprintf("## Conclusion\n\n%s", seg.Text))
		}
	}

	return g.assemble(j, nil)
}

// requestOutline asks the service for section titles, substituting the
// built-in default outline when the call fails or comes back short.
func (g *Generator) requestOutline(ctx context.Context, j *job, sections int) []string {
	prompt := fmt.Sprintf(outlinePrompt, j.topic.Text, sections)
	seg := g.call(ctx, j, SegmentOutline, "outline", prompt, 300)
	j.result.Segments = append(j.result.Segments, seg)
	if seg.Skipped {
		return fallbackOutline(sections)
	}
	j.result.Cost += seg.Cost

	parsed := textgen.ParseJSONResponse(seg.Text)
	titles := textgen.ParseStringList(parsed, "sections")
	if title, ok := parsed["title"].(string); ok && strings.TrimSpace(title) != "" {
		j.result.Title = strings.TrimSpace(title)
	}

	if len(titles) < sections {
		log.Printf("outline returned %d titles, need %d; using default outline", len(titles), sections)
		return fallbackOutline(sections)
	}
	return titles[:sections]
}

// call issues one bounded generation call and absorbs failures into a
// skipped segment.
func (g *Generator) call(ctx context.Context, j *job, kind SegmentKind, title, prompt string, maxWords int) SegmentResult {
	resp, err := g.client.Generate(ctx, textgen.Request{
		Model:        j.price.ServiceModel,
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		MaxUnits:     unitsForWords(maxWords),
		Temperature:  g.opts.Temperature,
	})
	if err != nil {
		log.Printf("%s segment %q failed: %v", kind, title, err)
		return SegmentResult{Kind: kind, Title: title, Skipped: true, Reason: err.Error()}
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		log.Printf("%s segment %q returned empty text", kind, title)
		return SegmentResult{Kind: kind, Title: title, Skipped: true, Reason: "empty response"}
	}

	return SegmentResult{
		Kind:  kind,
		Title: title,
		Text:  text,
		Usage: resp.Usage,
		Cost:  g.prices.Cost(j.model, resp.Usage.InputUnits, resp.Usage.OutputUnits),
	}
}

// assemble joins the generated parts into the result body. Partial output is
// preserved even when err is non-nil (cancellation).
func (g *Generator) assemble(j *job, err error) error {
	j.result.Body = strings.Join(j.parts, "\n\n")
	return err
}

func fallbackOutline(sections int) []string {
	if sections <= len(defaultOutline) {
		return defaultOutline[:sections]
	}
	titles := append([]string{}, defaultOutline...)
	for i := len(defaultOutline); i < sections; i++ {
		titles = append(titles, fmt.Sprintf("Further Notes %d", i-len(defaultOutline)+1))
	}
	return titles
}

// unitsForWords converts a word budget into a usage-unit cap with headroom.
func unitsForWords(words int) int {
	return int(float64(words) * 1.5)
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
