package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
	"github.com/finsight-hq/finsight-engine/pkg/logging"
	"github.com/finsight-hq/finsight-engine/pkg/metadata"
	"github.com/finsight-hq/finsight-engine/pkg/models"
	"github.com/finsight-hq/finsight-engine/pkg/retry"
	"github.com/finsight-hq/finsight-engine/pkg/sql"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse"
)

// DefaultResolutionTimeout bounds one whole resolution: extraction, every
// existence probe, relative-period anchoring, and the final retrieval.
const DefaultResolutionTimeout = 15 * time.Second

// DefaultMaxRows caps the rows returned by an executed retrieval.
const DefaultMaxRows = 100

// ResolutionResult is the assembled outcome of one resolved question.
// Failures are not represented here: they travel as the typed errors in
// pkg/apperrors, which carry their own suggestions and candidates.
type ResolutionResult struct {
	RequestID string                   `json:"request_id"`
	Question  string                   `json:"question"`
	Entities  models.ExtractedEntities `json:"entities"`
	Spec      models.ResolvedQuerySpec `json:"spec"`
	SQL       string                   `json:"sql"`
	Args      []any                    `json:"args"`
	Columns   []warehouse.ColumnInfo   `json:"columns,omitempty"`
	Rows      []map[string]any         `json:"rows,omitempty"`
	RowCount  int                      `json:"row_count"`
	Executed  bool                     `json:"executed"`
	ElapsedMS int64                    `json:"elapsed_ms"`
}

// ResolutionOptions tunes one ResolutionService instance.
type ResolutionOptions struct {
	// Timeout bounds a single resolution end to end. Zero means
	// DefaultResolutionTimeout.
	Timeout time.Duration
	// MaxRows caps executed retrievals. Zero means DefaultMaxRows.
	MaxRows int
	// ExecuteQueries controls whether the built retrieval runs against the
	// warehouse or is only returned as SQL + params.
	ExecuteQueries bool
}

// ResolutionService runs the full pipeline: extract entities, resolve the
// company, pin the consolidation, resolve the period (static forms before
// the metric, relative forms after, since relative anchoring needs the
// validated head), validate the metric against live data, build the
// retrieval, and optionally execute it.
type ResolutionService interface {
	// Resolve processes one question. consolidationOverride, when non-empty,
	// replaces whatever consolidation phrase the question carried.
	Resolve(ctx context.Context, question, consolidationOverride string) (*ResolutionResult, error)
}

type resolutionService struct {
	store     *metadata.Store
	exec      warehouse.Executor
	extractor EntityExtractor
	companies CompanyResolver
	periods   PeriodResolver
	metrics   MetricResolver
	lex       *Lexicon
	timeout   time.Duration
	maxRows   int
	execute   bool
	logger    *zap.Logger
}

// NewResolutionService wires the pipeline.
func NewResolutionService(
	store *metadata.Store,
	exec warehouse.Executor,
	extractor EntityExtractor,
	companies CompanyResolver,
	periods PeriodResolver,
	metrics MetricResolver,
	lex *Lexicon,
	opts ResolutionOptions,
	logger *zap.Logger,
) ResolutionService {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultResolutionTimeout
	}
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &resolutionService{
		store:     store,
		exec:      exec,
		extractor: extractor,
		companies: companies,
		periods:   periods,
		metrics:   metrics,
		lex:       lex,
		timeout:   timeout,
		maxRows:   maxRows,
		execute:   opts.ExecuteQueries,
		logger:    logger.Named("resolution-service"),
	}
}

var _ ResolutionService = (*resolutionService)(nil)

func (s *resolutionService) Resolve(ctx context.Context, question, consolidationOverride string) (*ResolutionResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("question is empty")
	}

	requestID := uuid.NewString()
	logger := s.logger.With(zap.String("request_id", requestID))
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snap := s.store.Current()
	if snap == nil {
		return nil, fmt.Errorf("metadata snapshot not loaded: %w", apperrors.ErrMetadataLoad)
	}

	entities, err := s.extractor.Extract(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to extract entities: %w", err)
	}
	logger.Debug("extraction finished",
		zap.String("company", entities.Company.Text),
		zap.String("metric", entities.Metric.Text),
		zap.String("period", entities.Period.Text))

	company, err := s.companies.Resolve(entities.Company.Text)
	if err != nil {
		logger.Info("company resolution failed", zap.String("phrase", entities.Company.Text), zap.Error(err))
		return nil, err
	}
	logger.Debug("company resolved",
		zap.Int("company_id", company.Company.CompanyID),
		zap.String("name", company.Company.Name),
		zap.Int("sector_id", company.SectorID))

	consolidationPhrase := entities.Consolidation.Text
	if strings.TrimSpace(consolidationOverride) != "" {
		consolidationPhrase = consolidationOverride
	}
	consolidationID := ResolveConsolidation(snap, consolidationPhrase)

	// Static periods (exact dates, term+year) are pinned before metric
	// validation so the existence probes carry the period filter. Relative
	// phrases wait: anchoring them needs the validated head's table.
	var period *models.ResolvedPeriod
	staticPeriod, isStatic, err := s.periods.ResolveStatic(entities.Period.Text)
	if err != nil {
		logger.Info("period resolution failed", zap.String("phrase", entities.Period.Text), zap.Error(err))
		return nil, err
	}
	if isStatic {
		period = &staticPeriod
	}

	wantTTM := false
	if period == nil {
		if _, kind, ok := s.lex.RelativePhrase(entities.Period.Text); ok && kind == relTTM {
			wantTTM = true
		}
	}

	head, err := s.metrics.Resolve(ctx, entities.Metric.Text, company, period, consolidationID, wantTTM)
	if err != nil {
		logger.Info("metric resolution failed", zap.String("phrase", entities.Metric.Text), zap.Error(err))
		return nil, err
	}
	logger.Debug("metric resolved",
		zap.Int("head_id", head.HeadID),
		zap.String("head_name", head.Name),
		zap.String("kind", string(head.Kind)))

	if period == nil {
		resolved, rerr := s.periods.Resolve(ctx, entities.Period.Text, company, head, consolidationID)
		if rerr != nil {
			logger.Info("period resolution failed", zap.String("phrase", entities.Period.Text), zap.Error(rerr))
			return nil, rerr
		}
		period = &resolved
	}

	spec := models.ResolvedQuerySpec{
		Company:         company,
		Head:            head,
		Period:          *period,
		ConsolidationID: consolidationID,
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate resolved spec: %w", err)
	}

	rq, err := sql.Build(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to build retrieval query: %w", err)
	}
	q, err := rq.Lower()
	if err != nil {
		return nil, err
	}
	logger.Debug("retrieval query built",
		zap.String("table", rq.Table),
		zap.String("sql", logging.SanitizeQuery(q.SQL)))

	result := &ResolutionResult{
		RequestID: requestID,
		Question:  question,
		Entities:  entities,
		Spec:      spec,
		SQL:       q.SQL,
		Args:      q.Args,
	}

	if s.execute {
		var res *warehouse.Result
		err = retry.DoIfRetryable(ctx, nil, func() error {
			var qerr error
			res, qerr = s.exec.QueryWithParams(ctx, q.SQL, q.Args, s.maxRows)
			return qerr
		})
		if err != nil {
			logger.Error("retrieval execution failed", zap.String("table", rq.Table), zap.Error(err))
			return nil, fmt.Errorf("failed to execute retrieval: %w", err)
		}
		result.Columns = res.Columns
		result.Rows = res.Rows
		result.RowCount = res.RowCount
		result.Executed = true
	}

	result.ElapsedMS = time.Since(start).Milliseconds()
	logger.Info("question resolved",
		zap.Int("company_id", company.Company.CompanyID),
		zap.Int("head_id", head.HeadID),
		zap.String("kind", string(head.Kind)),
		zap.String("table", rq.Table),
		zap.String("period", period.String()),
		zap.Int("consolidation_id", consolidationID),
		zap.Int("rows", result.RowCount),
		zap.Int64("elapsed_ms", result.ElapsedMS))
	return result, nil
}
