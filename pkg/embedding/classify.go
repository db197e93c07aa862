package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Template-similarity operations. Classification, intent detection and
// sentiment all work the same way: embed the input alongside a fixed set of
// natural-language templates and pick the template with the highest cosine
// similarity. The templates run through the regular embedding path, so their
// vectors are cached and the operations keep working — deterministically, if
// less meaningfully — on the hash fallback.

// ClassificationType selects the template set Classify scores against.
type ClassificationType string

const (
	ClassifyGeneral    ClassificationType = "general"
	ClassifyTask       ClassificationType = "task"
	ClassifyDomain     ClassificationType = "domain"
	ClassifyComplexity ClassificationType = "complexity"
)

// labeledTemplate pairs a category label with the sentence that represents it.
type labeledTemplate struct {
	label    string
	template string
}

var generalTemplates = []labeledTemplate{
	{"question", "This is a question asking for information or clarification"},
	{"request", "This is a request for action or assistance"},
	{"statement", "This is a statement providing information or opinion"},
	{"greeting", "This is a greeting or social interaction"},
	{"complaint", "This is a complaint or expression of dissatisfaction"},
}

var taskTemplates = []labeledTemplate{
	{"coding", "This is about programming, software development, or technical implementation"},
	{"analysis", "This is about analyzing, evaluating, or understanding something"},
	{"creation", "This is about creating, building, or generating something new"},
	{"explanation", "This is asking for explanation or clarification of concepts"},
	{"troubleshooting", "This is about solving problems or fixing issues"},
}

var domainTemplates = []labeledTemplate{
	{"technology", "This is about technology, computers, software, or digital topics"},
	{"business", "This is about business, finance, management, or commercial topics"},
	{"science", "This is about scientific concepts, research, or academic topics"},
	{"personal", "This is about personal matters, relationships, or individual concerns"},
	{"creative", "This is about creative work, art, writing, or artistic expression"},
}

var complexityTemplates = []labeledTemplate{
	{"simple", "This is a simple, straightforward question or request"},
	{"moderate", "This is a moderately complex topic requiring some analysis"},
	{"complex", "This is a complex topic requiring deep analysis and expertise"},
}

var intentTemplates = []labeledTemplate{
	{"information_seeking", "I want to learn about or understand something"},
	{"task_completion", "I need help completing a specific task or action"},
	{"problem_solving", "I have a problem that needs to be solved or fixed"},
	{"creative_assistance", "I need help with creative work or generating ideas"},
	{"decision_making", "I need help making a choice or decision"},
	{"social_interaction", "I want to have a conversation or social interaction"},
}

var sentimentTemplates = []labeledTemplate{
	{"positive", "This expresses happiness, satisfaction, joy, or positive emotions"},
	{"negative", "This expresses sadness, anger, frustration, or negative emotions"},
	{"neutral", "This is factual, objective, or emotionally neutral"},
}

// Classification is the outcome of one Classify call.
type Classification struct {
	// Label is the winning category, or "unknown" when no template scores
	// above zero (or the input is empty).
	Label string `json:"classification"`

	// Confidence is the boosted similarity of the winning template, capped
	// at 1.0.
	Confidence float64 `json:"confidence"`

	// Similarity is the raw cosine similarity of the winning template.
	Similarity float64 `json:"similarity_score"`

	Model        string        `json:"model"`
	UsedFallback bool          `json:"used_fallback"`
	Duration     time.Duration `json:"duration"`
}

func templatesFor(kind ClassificationType) ([]labeledTemplate, error) {
	switch kind {
	case "", ClassifyGeneral:
		return generalTemplates, nil
	case ClassifyTask:
		return taskTemplates, nil
	case ClassifyDomain:
		return domainTemplates, nil
	case ClassifyComplexity:
		return complexityTemplates, nil
	default:
		return nil, fmt.Errorf("embedding: unknown classification type %q", kind)
	}
}

// Classify assigns text to one of the kind's categories by template
// similarity. An empty kind means [ClassifyGeneral]. Empty or whitespace-only
// input returns "unknown" with zero confidence, flagged as fallback, without
// touching the backend.
func (s *Service) Classify(ctx context.Context, text string, kind ClassificationType) (Classification, error) {
	templates, err := templatesFor(kind)
	if err != nil {
		return Classification{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Classification{Label: "unknown", Model: "fallback", UsedFallback: true}, nil
	}

	start := time.Now()
	label, best, meta, err := s.bestMatch(ctx, text, templates)
	if err != nil {
		return Classification{}, err
	}
	return Classification{
		Label:        label,
		Confidence:   min(best*1.2, 1.0),
		Similarity:   best,
		Model:        meta.Model,
		UsedFallback: meta.UsedFallback,
		Duration:     time.Since(start),
	}, nil
}

// Intent is the outcome of one DetectIntent call.
type Intent struct {
	// Intent is the winning intent label, or "unknown".
	Intent string `json:"intent"`

	// Confidence is the boosted similarity of the winning template, capped
	// at 1.0.
	Confidence float64 `json:"confidence"`

	Model        string        `json:"model"`
	UsedFallback bool          `json:"used_fallback"`
	Duration     time.Duration `json:"duration"`
}

// DetectIntent identifies what the text is trying to accomplish, scored
// against six fixed intent templates. Empty or whitespace-only input returns
// "unknown" with zero confidence, flagged as fallback.
func (s *Service) DetectIntent(ctx context.Context, text string) (Intent, error) {
	if strings.TrimSpace(text) == "" {
		return Intent{Intent: "unknown", Model: "fallback", UsedFallback: true}, nil
	}

	start := time.Now()
	label, best, meta, err := s.bestMatch(ctx, text, intentTemplates)
	if err != nil {
		return Intent{}, err
	}
	return Intent{
		Intent:       label,
		Confidence:   min(best*1.1, 1.0),
		Model:        meta.Model,
		UsedFallback: meta.UsedFallback,
		Duration:     time.Since(start),
	}, nil
}

// Sentiment is the outcome of one AnalyzeSentiment call.
type Sentiment struct {
	// Sentiment is "positive", "negative" or "neutral" — whichever template
	// scores highest — or "unknown" for empty input.
	Sentiment string `json:"sentiment"`

	// Score is the positive similarity minus the negative similarity, so it
	// falls in [-1, 1] with 0 meaning balanced.
	Score float64 `json:"score"`

	// Confidence is the raw similarity of the winning template.
	Confidence float64 `json:"confidence"`

	Model        string        `json:"model"`
	UsedFallback bool          `json:"used_fallback"`
	Duration     time.Duration `json:"duration"`
}

// AnalyzeSentiment scores text against the three sentiment templates. Empty
// or whitespace-only input returns "unknown" with zero scores, flagged as
// fallback.
func (s *Service) AnalyzeSentiment(ctx context.Context, text string) (Sentiment, error) {
	if strings.TrimSpace(text) == "" {
		return Sentiment{Sentiment: "unknown", Model: "fallback", UsedFallback: true}, nil
	}

	start := time.Now()
	scores, meta, err := s.templateScores(ctx, text, sentimentTemplates)
	if err != nil {
		return Sentiment{}, err
	}

	best := "unknown"
	bestScore := 0.0
	for _, lt := range sentimentTemplates {
		if sc := scores[lt.label]; sc > bestScore {
			bestScore = sc
			best = lt.label
		}
	}
	return Sentiment{
		Sentiment:    best,
		Score:        scores["positive"] - scores["negative"],
		Confidence:   bestScore,
		Model:        meta.Model,
		UsedFallback: meta.UsedFallback,
		Duration:     time.Since(start),
	}, nil
}

// bestMatch embeds text and the templates in one batch and returns the label
// of the highest-scoring template with its raw similarity. A batch where no
// template scores above zero yields "unknown". meta is the input text's own
// embedding provenance.
func (s *Service) bestMatch(ctx context.Context, text string, templates []labeledTemplate) (string, float64, Embedding, error) {
	scores, meta, err := s.templateScores(ctx, text, templates)
	if err != nil {
		return "", 0, Embedding{}, err
	}
	label := "unknown"
	best := 0.0
	for _, lt := range templates {
		if sc := scores[lt.label]; sc > best {
			best = sc
			label = lt.label
		}
	}
	return label, best, meta, nil
}

// templateScores returns the cosine similarity of text against every
// template, keyed by label.
func (s *Service) templateScores(ctx context.Context, text string, templates []labeledTemplate) (map[string]float64, Embedding, error) {
	batch := make([]string, 0, len(templates)+1)
	batch = append(batch, text)
	for _, lt := range templates {
		batch = append(batch, lt.template)
	}

	embs, err := s.EmbedFull(ctx, batch)
	if err != nil {
		return nil, Embedding{}, err
	}

	input := embs[0]
	scores := make(map[string]float64, len(templates))
	for i, lt := range templates {
		scores[lt.label] = Cosine(input.Vector, embs[i+1].Vector)
	}
	return scores, input, nil
}
