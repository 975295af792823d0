// Package reader turns raw deal documents into structured extraction
// results. The Claude-backed implementation makes two passes per document:
// a cheap structure analysis, then a full extraction that carries the
// session's accumulated context in the prompt.
package reader

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/resilience"
	"github.com/sells-group/valuation-cli/pkg/anthropic"
)

// Reader analyzes and extracts financial data from deal documents.
type Reader interface {
	// AnalyzeStructure classifies the document and identifies which
	// facilities and periods it covers, without extracting values.
	AnalyzeStructure(ctx context.Context, doc model.Document, priorContext string) (*model.DocumentStructure, error)

	// Extract pulls every financial period, census period, payer rate, and
	// facility record out of the document. priorContext is the rendered
	// session summary; focus lists field paths that earlier documents left
	// uncertain.
	Extract(ctx context.Context, doc model.Document, structure *model.DocumentStructure, priorContext string, focus []string) (*model.ExtractionResult, error)
}

// retryAttempts is the max number of tries per API call.
const retryAttempts = 3

// Options configures the Claude-backed reader.
type Options struct {
	Model          string
	MaxTokens      int64
	RequestsPerMin int // 0 disables client-side rate limiting
}

// ClaudeReader implements Reader against the Anthropic API.
type ClaudeReader struct {
	client  anthropic.Client
	model   string
	maxTok  int64
	limiter *rate.Limiter
}

// New creates a ClaudeReader. Zero-value options get sane defaults.
func New(client anthropic.Client, opts Options) *ClaudeReader {
	if opts.Model == "" {
		opts.Model = "claude-sonnet-4-5-20250929"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 16384
	}
	var limiter *rate.Limiter
	if opts.RequestsPerMin > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMin)), 1)
	}
	return &ClaudeReader{
		client:  client,
		model:   opts.Model,
		maxTok:  opts.MaxTokens,
		limiter: limiter,
	}
}

// AnalyzeStructure runs the first-pass document classification.
func (r *ClaudeReader) AnalyzeStructure(ctx context.Context, doc model.Document, priorContext string) (*model.DocumentStructure, error) {
	prompt := buildStructurePrompt(doc, priorContext)

	resp, err := r.send(ctx, anthropic.MessageRequest{
		Model:     r.model,
		MaxTokens: 2048,
		System:    anthropic.BuildCachedSystemBlocks(structureSystemText),
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "reader: analyze structure %s", doc.Name)
	}

	structure, err := parseStructure(extractText(resp))
	if err != nil {
		return nil, eris.Wrapf(err, "reader: parse structure %s", doc.Name)
	}
	structure.TokensUsed = int(resp.Usage.InputTokens + resp.Usage.OutputTokens)
	resp.Usage.LogCost(r.model, "structure")

	zap.L().Debug("reader: structure analyzed",
		zap.String("document", doc.Name),
		zap.String("type", structure.DocumentType),
		zap.Int("facilities", len(structure.FacilityNames)),
		zap.Int("periods", len(structure.Periods)),
	)
	return structure, nil
}

// Extract runs the full extraction pass.
func (r *ClaudeReader) Extract(ctx context.Context, doc model.Document, structure *model.DocumentStructure, priorContext string, focus []string) (*model.ExtractionResult, error) {
	prompt := buildExtractionPrompt(doc, structure, priorContext, focus)

	resp, err := r.send(ctx, anthropic.MessageRequest{
		Model:     r.model,
		MaxTokens: r.maxTok,
		System:    anthropic.BuildCachedSystemBlocks(extractionSystemText),
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "reader: extract %s", doc.Name)
	}

	result, err := parseExtraction(extractText(resp))
	if err != nil {
		return nil, eris.Wrapf(err, "reader: parse extraction %s", doc.Name)
	}
	result.TokensUsed = int(resp.Usage.InputTokens + resp.Usage.OutputTokens)
	resp.Usage.LogCost(r.model, "extract")

	zap.L().Info("reader: document extracted",
		zap.String("document", doc.Name),
		zap.Int("financial_periods", len(result.FinancialPeriods)),
		zap.Int("census_periods", len(result.CensusPeriods)),
		zap.Int("payer_rates", len(result.PayerRates)),
		zap.Float64("confidence", result.Confidence),
	)
	return result, nil
}

// send issues one CreateMessage call with rate limiting and retry.
func (r *ClaudeReader) send(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "reader: rate limit wait")
		}
	}

	return resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts:    retryAttempts,
		InitialBackoff: 500 * time.Millisecond,
		OnRetry: func(attempt int, err error) {
			zap.L().Warn("reader: message failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		},
	}, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return r.client.CreateMessage(ctx, req)
	})
}

// extractText concatenates all text blocks from a response.
func extractText(resp *anthropic.MessageResponse) string {
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text
}
