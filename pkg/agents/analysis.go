package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-agent/pkg/pipeline"
)

// Analysis synthesizes the accumulated web results and retrieved documents
// into key insights with a single LLM call.
type Analysis struct {
	LLM llms.Model
}

func NewAnalysis(llm llms.Model) *Analysis {
	return &Analysis{LLM: llm}
}

func (s *Analysis) Name() string { return pipeline.StepAnalysis }

func (s *Analysis) Execute(ctx context.Context, state pipeline.ResearchState) (pipeline.ResearchState, error) {
	sources := buildSourceContext(state)
	if sources == "" {
		// Nothing was gathered by the earlier steps. Record that instead of
		// burning an LLM call on an empty prompt.
		state.Analysis = "No sources found for analysis"
		return state, nil
	}

	prompt := fmt.Sprintf(`Analyze the following research sources and provide key insights:

%s

Please provide:
1. Main themes and patterns
2. Key findings
3. Contradictions or discrepancies (if any)
4. Confidence level in the findings
5. Gaps or areas needing further research`, sources)

	resp, err := s.LLM.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, llms.WithTemperature(0.5))
	if err != nil {
		return state, &pipeline.ProviderError{Step: s.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return state, &pipeline.ProviderError{Step: s.Name(), Err: fmt.Errorf("llm returned no choices")}
	}

	state.Analysis = resp.Choices[0].Content
	return state, nil
}

// buildSourceContext numbers every gathered source and truncates long content
// so the combined prompt stays within reason.
func buildSourceContext(state pipeline.ResearchState) string {
	var parts []string
	n := 0

	for _, r := range state.SearchResults {
		n++
		var b strings.Builder
		fmt.Fprintf(&b, "Source %d:", n)
		if r.Title != "" {
			fmt.Fprintf(&b, "\nTitle: %s", r.Title)
		}
		if r.URL != "" {
			fmt.Fprintf(&b, "\nURL: %s", r.URL)
		}
		fmt.Fprintf(&b, "\nContent: %s", truncateRunes(r.Snippet, 500))
		parts = append(parts, b.String())
	}

	for _, d := range state.Documents {
		n++
		var b strings.Builder
		fmt.Fprintf(&b, "Source %d:", n)
		if title, ok := d.Metadata["title"].(string); ok && title != "" {
			fmt.Fprintf(&b, "\nTitle: %s", title)
		}
		fmt.Fprintf(&b, "\nContent: %s", truncateRunes(d.Content, 500))
		parts = append(parts, b.String())
	}

	return strings.Join(parts, "\n\n")
}

// truncateRunes cuts on rune boundaries to avoid producing invalid UTF-8.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
