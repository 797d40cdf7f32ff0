// Package contradiction implements Rook's four-layer contradiction
// detector (component E): embedding-opposition, keyword/negation,
// temporal, and LLM layers, cascaded with short-circuit on the first
// layer that reaches a verdict other than abstain.
package contradiction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/rook-mem/rook/internal/rookerr"
	"github.com/rook-mem/rook/pkg/provider/embeddings"
	"github.com/rook-mem/rook/pkg/provider/llm"
	"github.com/rook-mem/rook/pkg/types"
)

// Verdict is the result reached by whichever layer decides.
type Verdict string

const (
	Contradicts      Verdict = "contradicts"
	DoesNotContradict Verdict = "does_not_contradict"
	Abstain          Verdict = "abstain"
)

// Layer identifies which of the four cascaded stages produced an Outcome.
type Layer int

const (
	LayerEmbeddingOpposition Layer = 1
	LayerKeywordNegation     Layer = 2
	LayerTemporal            Layer = 3
	LayerLLM                 Layer = 4
)

// Outcome is the structured result the ingestion gate consumes.
type Outcome struct {
	Verdict   Verdict
	Layer     Layer
	Rationale string
}

// Candidate is the fact being checked against an existing memory.
type Candidate struct {
	Text      string
	Embedding []float32
}

// Target is the existing memory the candidate is compared against.
type Target struct {
	Text      string
	Embedding []float32
	IsKey     bool
}

// Option configures a Detector.
type Option func(*Detector)

// WithSameTopicFloor overrides the layer-1 same-topic cosine-similarity
// floor (default 0.6).
func WithSameTopicFloor(v float64) Option {
	return func(d *Detector) { d.sameTopicFloor = v }
}

// WithDivergenceThreshold overrides the layer-1 negation-masked divergence
// threshold (default 0.15).
func WithDivergenceThreshold(v float64) Option {
	return func(d *Detector) { d.divergenceThreshold = v }
}

// WithTimeout overrides the timeout (default 30s) applied to each network
// call: the layer-1 embedding call and the layer-4 LLM call.
func WithTimeout(d time.Duration) Option {
	return func(det *Detector) { det.timeout = d }
}

// Detector runs the four-layer cascade. The embedder is only invoked by
// layer 1 (to re-embed negation-masked text); the model is only invoked by
// layer 4.
type Detector struct {
	embedder embeddings.Provider
	model    llm.Provider

	sameTopicFloor      float64
	divergenceThreshold float64
	timeout             time.Duration
}

// New constructs a Detector.
func New(embedder embeddings.Provider, model llm.Provider, opts ...Option) *Detector {
	d := &Detector{
		embedder:            embedder,
		model:               model,
		sameTopicFloor:      0.6,
		divergenceThreshold: 0.15,
		timeout:             30 * time.Second,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect runs the cascade for candidate against target and returns the
// first layer's non-abstain verdict, or an Abstain Outcome if all four
// layers abstain. A timeout or provider error in a network-bound layer
// (1 or 4) degrades that layer to an abstain rather than failing the
// whole detection, so the cascade still falls through to its remaining
// layers.
func (d *Detector) Detect(ctx context.Context, candidate Candidate, target Target) (Outcome, error) {
	out, ok, err := d.layer1(ctx, candidate, target)
	if err != nil {
		slog.Warn("contradiction: layer 1 abstained after error", "err", err)
	} else if ok {
		return out, nil
	}

	if out, ok := layer2(candidate.Text, target.Text); ok {
		return out, nil
	}

	if out, ok := layer3(candidate.Text, target.Text); ok {
		return out, nil
	}

	if target.IsKey || hasCorrectionCue(candidate.Text) {
		return d.layer4(ctx, candidate, target), nil
	}

	return Outcome{Verdict: Abstain}, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var negationTokens = regexp.MustCompile(`(?i)\b(not|no|never|n't|doesn't|don't|isn't|aren't|wasn't|weren't|can't|cannot|won't|didn't)\b`)

func maskNegations(text string) string {
	return strings.Join(strings.Fields(negationTokens.ReplaceAllString(text, "")), " ")
}

// layer1 re-embeds both texts with negation tokens stripped and compares
// the divergence between masked similarity and raw similarity: a same-topic
// pair whose similarity jumps sharply once polarity words are removed is
// very likely differing only in polarity, i.e. a contradiction.
func (d *Detector) layer1(ctx context.Context, c Candidate, t Target) (Outcome, bool, error) {
	rawSim := cosine(c.Embedding, t.Embedding)
	if rawSim < d.sameTopicFloor {
		return Outcome{}, false, nil
	}

	maskedCandidate := maskNegations(c.Text)
	maskedTarget := maskNegations(t.Text)
	if maskedCandidate == strings.Join(strings.Fields(c.Text), " ") && maskedTarget == strings.Join(strings.Fields(t.Text), " ") {
		// Neither text carries a negation token; this layer has nothing to
		// contribute beyond the raw similarity already used upstream.
		return Outcome{}, false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	vecs, err := d.embedder.EmbedBatch(ctx, []string{maskedCandidate, maskedTarget})
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, false, rookerr.Wrap(rookerr.Timeout, "contradiction: embedding call timed out", err)
		}
		return Outcome{}, false, rookerr.Wrap(rookerr.ProviderError, "contradiction: embedding call failed", err)
	}

	maskedSim := cosine(vecs[0], vecs[1])
	divergence := maskedSim - rawSim
	if divergence > d.divergenceThreshold {
		return Outcome{
			Verdict:   Contradicts,
			Layer:     LayerEmbeddingOpposition,
			Rationale: fmt.Sprintf("same-topic similarity %.2f rose to %.2f once negation was masked", rawSim, maskedSim),
		}, true, nil
	}
	return Outcome{}, false, nil
}

// negationPair is one affirmative/negative word pair the keyword layer
// watches for on a shared subject.
type negationPair struct {
	affirmative []string
	negative    []string
}

var negationPairs = []negationPair{
	{affirmative: []string{"likes", "like", "loves", "love", "enjoys", "enjoy"}, negative: []string{"dislikes", "dislike", "hates", "hate", "doesn't like", "does not like"}},
	{affirmative: []string{"is"}, negative: []string{"isn't", "is not"}},
	{affirmative: []string{"always"}, negative: []string{"never"}},
	{affirmative: []string{"available"}, negative: []string{"busy", "unavailable"}},
	{affirmative: []string{"married"}, negative: []string{"single", "divorced"}},
	{affirmative: []string{"vegetarian", "vegan"}, negative: []string{"carnivore", "meat-eater"}},
	{affirmative: []string{"works at", "works for"}, negative: []string{"left", "quit", "no longer works at"}},
}

// layer2 matches candidate and target against a fixed affirmative/negative
// table on a shared subject (approximated here by requiring a shared
// non-trivial token outside the pair words themselves).
func layer2(candidateText, targetText string) (Outcome, bool) {
	cl := strings.ToLower(candidateText)
	tl := strings.ToLower(targetText)

	for _, pair := range negationPairs {
		candAff, candNeg := containsAny(cl, pair.affirmative), containsAny(cl, pair.negative)
		tgtAff, tgtNeg := containsAny(tl, pair.affirmative), containsAny(tl, pair.negative)

		if (candAff && tgtNeg) || (candNeg && tgtAff) {
			if sharesSubject(cl, tl, pair) {
				return Outcome{
					Verdict:   Contradicts,
					Layer:     LayerKeywordNegation,
					Rationale: "opposing affirmative/negative predicate pair on a shared subject",
				}, true
			}
		}
	}
	return Outcome{}, false
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// sharesSubject is a coarse heuristic: the two texts share at least one
// content word (length > 3) outside the pair's own vocabulary.
func sharesSubject(a, b string, pair negationPair) bool {
	excluded := make(map[string]struct{})
	for _, w := range append(append([]string{}, pair.affirmative...), pair.negative...) {
		excluded[w] = struct{}{}
	}
	bTokens := make(map[string]struct{})
	for _, w := range strings.Fields(b) {
		bTokens[w] = struct{}{}
	}
	for _, w := range strings.Fields(a) {
		if len(w) <= 3 {
			continue
		}
		if _, skip := excluded[w]; skip {
			continue
		}
		if _, shared := bTokens[w]; shared {
			return true
		}
	}
	return false
}

var datePattern = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}(?:/\d{2,4})?|(?i:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2})\b`)

// exclusivePair names two predicates that cannot both hold over an
// overlapping interval for the same subject.
var exclusivePairs = [][2]string{
	{"free", "meeting"},
	{"available", "busy"},
	{"home", "traveling"},
	{"single", "married"},
}

// layer3 fires when both texts carry a parseable date/time token and state
// mutually exclusive predicates, treating the shared date token as evidence
// the predicates bind to the same event.
func layer3(candidateText, targetText string) (Outcome, bool) {
	candDate := datePattern.FindString(candidateText)
	tgtDate := datePattern.FindString(targetText)
	if candDate == "" || tgtDate == "" || !strings.EqualFold(candDate, tgtDate) {
		return Outcome{}, false
	}

	cl := strings.ToLower(candidateText)
	tl := strings.ToLower(targetText)
	for _, pair := range exclusivePairs {
		if (strings.Contains(cl, pair[0]) && strings.Contains(tl, pair[1])) ||
			(strings.Contains(cl, pair[1]) && strings.Contains(tl, pair[0])) {
			return Outcome{
				Verdict:   Contradicts,
				Layer:     LayerTemporal,
				Rationale: fmt.Sprintf("mutually exclusive predicates (%q/%q) bound to the same date %q", pair[0], pair[1], candDate),
			}, true
		}
	}
	return Outcome{}, false
}

var correctionCues = []string{"actually", "correction", "no,", "to correct", "i misspoke"}

func hasCorrectionCue(text string) bool {
	lower := strings.ToLower(text)
	for _, cue := range correctionCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

type llmVerdict struct {
	Contradicts bool   `json:"contradicts"`
	Rationale   string `json:"rationale"`
}

const layer4SystemPrompt = `You judge whether two statements about the same person/entity contradict each other.

Respond with ONLY a JSON object: {"contradicts": bool, "rationale": "<one short sentence>"}.`

// layer4 is the LLM-backed layer, invoked only when the first three
// layers abstain and either the target is a key memory or the candidate
// itself contains an explicit correction cue. A timeout, provider error, or
// malformed response degrades this layer to an abstain rather than failing
// the whole detection.
func (d *Detector) layer4(ctx context.Context, c Candidate, t Target) Outcome {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Existing statement: %q\nNew statement: %q", t.Text, c.Text)
	resp, err := d.model.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: layer4SystemPrompt,
		Messages:     []types.Message{{Role: "user", Content: prompt}},
		Temperature:  0,
	})
	if err != nil {
		if ctx.Err() != nil {
			slog.Warn("contradiction: layer 4 abstained after timeout", "err", rookerr.Wrap(rookerr.Timeout, "contradiction: LLM layer timed out", err))
		} else {
			slog.Warn("contradiction: layer 4 abstained after provider error", "err", rookerr.Wrap(rookerr.ProviderError, "contradiction: LLM layer failed", err))
		}
		return Outcome{Verdict: Abstain, Layer: LayerLLM}
	}

	var v llmVerdict
	content := strings.TrimSpace(resp.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &v); err != nil {
		slog.Warn("contradiction: layer 4 abstained after invalid response", "err", rookerr.Wrap(rookerr.ProviderError, "contradiction: LLM layer returned invalid JSON", err))
		return Outcome{Verdict: Abstain, Layer: LayerLLM}
	}

	if v.Contradicts {
		return Outcome{Verdict: Contradicts, Layer: LayerLLM, Rationale: v.Rationale}
	}
	return Outcome{Verdict: DoesNotContradict, Layer: LayerLLM, Rationale: v.Rationale}
}
