package reader

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/pkg/anthropic"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testDoc(name, text string) model.Document {
	return model.Document{ID: "doc-1", Name: name, Path: "/deals/" + name, Kind: model.DocText, Text: text}
}

// scriptedClient returns canned responses in order, recording each request.
type scriptedClient struct {
	responses []*anthropic.MessageResponse
	errs      []error
	requests  []anthropic.MessageRequest
}

func (s *scriptedClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func textResponse(text string, in, out int64) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: in, OutputTokens: out},
	}
}

func TestAnalyzeStructure(t *testing.T) {
	client := &scriptedClient{responses: []*anthropic.MessageResponse{
		textResponse(`{"document_type": "census_report", "facility_names": ["Maple Grove"], "periods": ["2025-11"]}`, 8000, 200),
	}}
	r := New(client, Options{})

	structure, err := r.AnalyzeStructure(context.Background(), testDoc("census.pdf", "occupancy grid"), "prior summary")
	require.NoError(t, err)
	assert.Equal(t, "census_report", structure.DocumentType)
	assert.Equal(t, []string{"Maple Grove"}, structure.FacilityNames)
	assert.Equal(t, 8200, structure.TokensUsed)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "claude-sonnet-4-5-20250929", req.Model)
	assert.Equal(t, int64(2048), req.MaxTokens)
	require.Len(t, req.System, 1)
	require.NotNil(t, req.System[0].CacheControl)
	assert.Equal(t, "1h", req.System[0].CacheControl.TTL)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "census.pdf")
	assert.Contains(t, req.Messages[0].Content, "prior summary")
}

func TestExtract(t *testing.T) {
	client := &scriptedClient{responses: []*anthropic.MessageResponse{
		textResponse("```json\n"+`{"financial_periods": [{"facility_name": "Maple Grove", "period_start": "2025-11-01", "period_end": "2025-11-30"}], "confidence": 0.9}`+"\n```", 20000, 1500),
	}}
	r := New(client, Options{Model: "claude-haiku-4-5-20251001", MaxTokens: 4096})

	structure := &model.DocumentStructure{DocumentType: "financial_statement"}
	res, err := r.Extract(context.Background(), testDoc("p&l.xlsx", "grid"), structure, "", []string{"revenue.total"})
	require.NoError(t, err)
	require.Len(t, res.FinancialPeriods, 1)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Equal(t, 21500, res.TokensUsed)

	req := client.requests[0]
	assert.Equal(t, "claude-haiku-4-5-20251001", req.Model)
	assert.Equal(t, int64(4096), req.MaxTokens)
	assert.Contains(t, req.Messages[0].Content, "revenue.total")
}

func TestExtract_ParseFailure(t *testing.T) {
	client := &scriptedClient{responses: []*anthropic.MessageResponse{
		textResponse("I could not process this document.", 100, 20),
	}}
	r := New(client, Options{})

	_, err := r.Extract(context.Background(), testDoc("p&l.xlsx", "grid"), nil, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse extraction")
}

func TestSend_RetriesTransientFailure(t *testing.T) {
	client := &scriptedClient{
		errs: []error{fmt.Errorf("overloaded"), nil},
		responses: []*anthropic.MessageResponse{
			nil,
			textResponse(`{"document_type": "mixed"}`, 100, 10),
		},
	}
	r := New(client, Options{})

	structure, err := r.AnalyzeStructure(context.Background(), testDoc("a.txt", "text"), "")
	require.NoError(t, err)
	assert.Equal(t, "mixed", structure.DocumentType)
	assert.Len(t, client.requests, 2)
}

func TestSend_ExhaustsRetries(t *testing.T) {
	client := &scriptedClient{
		errs:      []error{fmt.Errorf("overloaded"), fmt.Errorf("overloaded"), fmt.Errorf("overloaded")},
		responses: []*anthropic.MessageResponse{nil, nil, nil},
	}
	r := New(client, Options{})

	_, err := r.AnalyzeStructure(context.Background(), testDoc("a.txt", "text"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
	assert.Len(t, client.requests, retryAttempts)
}

func TestSend_CancelledDuringRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &scriptedClient{
		errs:      []error{fmt.Errorf("overloaded")},
		responses: []*anthropic.MessageResponse{nil},
	}
	r := New(client, Options{})
	cancel()

	_, err := r.AnalyzeStructure(ctx, testDoc("a.txt", "text"), "")
	require.Error(t, err)
	assert.Len(t, client.requests, 1)
}
