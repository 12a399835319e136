package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/llm"
	"github.com/finsight-hq/finsight-engine/pkg/models"
)

const llmExtractionSystemMessage = `You extract structured entities from questions about company financials. Respond with a single JSON object and nothing else, using exactly these keys:
{"company": "", "metric": "", "period": "", "consolidation": ""}
Rules:
- "company": the company name or ticker the question is about, or "" if none.
- "metric": the financial metric or ratio asked for, or "".
- "period": the reporting period phrase exactly as asked (e.g. "Q2 2023", "FY2021", "latest", "2021-03-31"), or "".
- "consolidation": "consolidated" or "unconsolidated" only when explicitly stated, else "".
Do not invent entities that are not in the question.`

// Confidence assigned to fragments the model supplied. Below every lexical
// pattern tier so a later lexical hit on the same question still wins.
const llmFragmentConfidence = 0.75

type llmEntities struct {
	Company       string `json:"company"`
	Metric        string `json:"metric"`
	Period        string `json:"period"`
	Consolidation string `json:"consolidation"`
}

// llmEntityExtractor refines weak lexical extractions with a model call.
// Fragments whose lexical confidence clears minConfidence are kept as-is;
// only the gaps are filled from the model's JSON. A model failure degrades
// to the lexical result, never to an error, and a run of failures opens the
// circuit breaker so a dead provider is skipped instead of re-dialed on
// every resolution.
type llmEntityExtractor struct {
	base           EntityExtractor
	client         llm.LLMClient
	circuitBreaker *llm.CircuitBreaker
	lex            *Lexicon
	minConfidence  float64
	logger         *zap.Logger
}

// NewLLMEntityExtractor wraps a lexical extractor with model-assisted
// refinement. client and circuitBreaker may not be nil; callers that run
// without a model keep the bare lexical extractor instead.
func NewLLMEntityExtractor(base EntityExtractor, client llm.LLMClient, circuitBreaker *llm.CircuitBreaker, lex *Lexicon, minConfidence float64, logger *zap.Logger) EntityExtractor {
	return &llmEntityExtractor{
		base:           base,
		client:         client,
		circuitBreaker: circuitBreaker,
		lex:            lex,
		minConfidence:  minConfidence,
		logger:         logger.Named("llm-entity-extractor"),
	}
}

var _ EntityExtractor = (*llmEntityExtractor)(nil)

func (e *llmEntityExtractor) Extract(ctx context.Context, question string) (models.ExtractedEntities, error) {
	entities, err := e.base.Extract(ctx, question)
	if err != nil {
		return entities, err
	}
	if !e.needsRefinement(entities) {
		return entities, nil
	}

	if allowed, berr := e.circuitBreaker.Allow(); !allowed {
		e.logger.Warn("model refinement skipped, keeping lexical extraction",
			zap.String("circuit_state", e.circuitBreaker.State().String()),
			zap.Int("consecutive_failures", e.circuitBreaker.ConsecutiveFailures()),
			zap.Error(berr))
		return entities, nil
	}

	refined, rerr := e.refine(ctx, question)
	if rerr != nil {
		e.logger.Warn("model refinement failed, keeping lexical extraction",
			zap.String("question", question),
			zap.Error(rerr))
		return entities, nil
	}
	return e.merge(entities, refined), nil
}

func (e *llmEntityExtractor) needsRefinement(entities models.ExtractedEntities) bool {
	for _, f := range []models.Fragment{entities.Company, entities.Metric, entities.Period} {
		if f.Confidence < e.minConfidence {
			return true
		}
	}
	return false
}

func (e *llmEntityExtractor) refine(ctx context.Context, question string) (llmEntities, error) {
	prompt := fmt.Sprintf("Question: %s", question)
	res, err := e.client.GenerateResponse(ctx, prompt, llmExtractionSystemMessage, 0)
	if err != nil {
		e.circuitBreaker.RecordFailure()
		return llmEntities{}, fmt.Errorf("failed to generate extraction response: %w", err)
	}
	// The provider answered; a malformed payload is not a provider outage.
	e.circuitBreaker.RecordSuccess()
	parsed, err := llm.ParseJSONResponse[llmEntities](res.Content)
	if err != nil {
		return llmEntities{}, fmt.Errorf("failed to parse extraction response: %w", err)
	}
	e.logger.Debug("model extraction parsed",
		zap.String("company", parsed.Company),
		zap.String("metric", parsed.Metric),
		zap.String("period", parsed.Period),
		zap.Int("total_tokens", res.TotalTokens))
	return parsed, nil
}

// merge fills low-confidence fragments from the model and recomputes the
// indicator flags for any fragment that changed.
func (e *llmEntityExtractor) merge(entities models.ExtractedEntities, refined llmEntities) models.ExtractedEntities {
	out := entities
	out.Company = e.pick(entities.Company, refined.Company)
	out.Metric = e.pick(entities.Metric, refined.Metric)
	out.Period = e.pick(entities.Period, refined.Period)
	out.Consolidation = e.pick(entities.Consolidation, refined.Consolidation)

	if out.Period.Text != entities.Period.Text {
		_, _, out.HasRelativePeriod = e.lex.RelativePhrase(out.Period.Text)
	}
	if out.Metric.Text != entities.Metric.Text {
		if groupID, ok := e.lex.DissectionGroup(out.Metric.Text); ok {
			out.HasDissectionIndicator = true
			out.DissectionGroupLabel = e.lex.GroupLabel(groupID)
		} else {
			out.HasDissectionIndicator = false
			out.DissectionGroupLabel = ""
		}
	}
	return out
}

func (e *llmEntityExtractor) pick(lexical models.Fragment, model string) models.Fragment {
	if lexical.Set() && lexical.Confidence >= e.minConfidence {
		return lexical
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return lexical
	}
	return models.Fragment{Text: normalizeText(model), Confidence: llmFragmentConfidence}
}
