// Package annotator attaches an advisory AI score and summary to pool assets.
// The score is informational only; no decision path reads it.
package annotator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ValueSentinel/internal/model"
	"ValueSentinel/internal/pool"
	"ValueSentinel/internal/valuation"
)

const maxSummaryRunes = 500

// Generator turns a prompt into model text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Annotation is the parsed model verdict.
type Annotation struct {
	Score   int    `json:"score"`
	Summary string `json:"summary"`
}

// Service builds prompts from valuation history and stores the parsed result on the asset.
type Service struct {
	gen     Generator
	pool    *pool.Service
	vals    *valuation.Service
	years   int
	timeout time.Duration
	log     zerolog.Logger
}

// NewService creates an annotator over gen.
func NewService(gen Generator, pools *pool.Service, vals *valuation.Service, years int, log zerolog.Logger) *Service {
	if years <= 0 {
		years = 5
	}
	return &Service{
		gen:     gen,
		pool:    pools,
		vals:    vals,
		years:   years,
		timeout: 60 * time.Second,
		log:     log.With().Str("service", "annotator").Logger(),
	}
}

// Annotate asks the model about one asset and persists the score and summary.
func (s *Service) Annotate(ctx context.Context, userID int64, code string) (*Annotation, error) {
	asset, err := s.pool.Get(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	prompt, err := s.prompt(ctx, asset)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("annotate %s: %w", asset.Code, err)
	}
	ann, err := Parse(text)
	if err != nil {
		s.log.Warn().Str("code", asset.Code).Err(err).Msg("unparseable model reply")
		return nil, fmt.Errorf("annotate %s: %w", asset.Code, err)
	}
	if err := s.pool.SetAIAnnotation(ctx, userID, asset.ID, ann.Score, ann.Summary); err != nil {
		return nil, err
	}
	s.log.Info().Str("code", asset.Code).Int("score", ann.Score).Msg("asset annotated")
	return ann, nil
}

func (s *Service) prompt(ctx context.Context, a *model.Asset) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a value investing analyst. Assess %s (%s, market %s", a.Name, a.Code, a.Market)
	if a.Industry != "" {
		fmt.Fprintf(&sb, ", industry %s", a.Industry)
	}
	sb.WriteString(").\n")

	latest, err := s.vals.Latest(ctx, a.UserID, a.ID)
	if err != nil {
		return "", err
	}
	if latest != nil && latest.PB != nil {
		fmt.Fprintf(&sb, "Current PB: %.2f (as of %s).\n", *latest.PB, latest.Date.Format(model.DateLayout))
		pct, err := s.vals.Percentile(ctx, a.UserID, a.ID, *latest.PB, s.years)
		if err != nil {
			return "", err
		}
		if pct != nil {
			fmt.Fprintf(&sb, "%dy PB percentile: %.1f%%.\n", s.years, *pct)
		}
	}
	stats, err := s.vals.Stats(ctx, a.UserID, a.ID, s.years)
	if err != nil {
		return "", err
	}
	if stats != nil {
		fmt.Fprintf(&sb, "%dy PB range: min %.2f, max %.2f, average %.2f over %d observations.\n",
			s.years, stats.Min, stats.Max, stats.Avg, stats.Count)
	}
	sb.WriteString("Rate the long-term investment quality from 1 (poor) to 5 (excellent).\n")
	sb.WriteString("Reply with a first line of the form `SCORE: n`, followed by 3 to 5 sentences of analysis.")
	return sb.String(), nil
}

var scoreLine = regexp.MustCompile(`(?im)^[^\w\n]*score[^\d\n]*?(\d+)`)

// Parse extracts the `SCORE: n` line and keeps the remaining text as the summary.
func Parse(text string) (*Annotation, error) {
	loc := scoreLine.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil, fmt.Errorf("no SCORE line in reply")
	}
	score, err := strconv.Atoi(text[loc[2]:loc[3]])
	if err != nil || score < 1 || score > 5 {
		return nil, fmt.Errorf("score %q out of range 1~5", text[loc[2]:loc[3]])
	}

	// the rest of the score line is dropped with it
	rest := text[:loc[0]]
	if i := strings.IndexByte(text[loc[1]:], '\n'); i >= 0 {
		rest += text[loc[1]+i:]
	}
	summary := strings.TrimSpace(rest)
	if r := []rune(summary); len(r) > maxSummaryRunes {
		summary = string(r[:maxSummaryRunes])
	}
	return &Annotation{Score: score, Summary: summary}, nil
}
