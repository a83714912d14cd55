package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-agent/pkg/pipeline"
)

// Writer turns the analysis into the final structured research report with a
// single LLM call.
type Writer struct {
	LLM llms.Model
}

func NewWriter(llm llms.Model) *Writer {
	return &Writer{LLM: llm}
}

func (s *Writer) Name() string { return pipeline.StepWriteReport }

func (s *Writer) Execute(ctx context.Context, state pipeline.ResearchState) (pipeline.ResearchState, error) {
	prompt := fmt.Sprintf(`Write a comprehensive research report based on the following:

Research Query: %s

Analysis and Findings:
%s

Please write a professional research report with the following structure:
1. Executive Summary
2. Introduction
3. Key Findings
4. Detailed Analysis
5. Sources and References
6. Conclusions and Recommendations

Make it well-structured, professional, and suitable for presentation.`, state.Query, state.Analysis)

	resp, err := s.LLM.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, llms.WithTemperature(0.7))
	if err != nil {
		return state, &pipeline.ProviderError{Step: s.Name(), Err: err}
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return state, &pipeline.ProviderError{Step: s.Name(), Err: fmt.Errorf("llm returned empty report")}
	}

	content := resp.Choices[0].Content
	state.Report = &pipeline.Report{
		Title:   "Research Report: " + truncateRunes(state.Query, 50),
		Content: content,
		Summary: firstParagraph(content),
		Metadata: map[string]interface{}{
			"query":             state.Query,
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
			"sources_count":     len(state.Documents),
			"web_results_count": len(state.SearchResults),
			"agent_type":        "writer",
		},
	}
	return state, nil
}

func firstParagraph(content string) string {
	for _, p := range strings.Split(content, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			return truncateRunes(p, 300)
		}
	}
	return ""
}
