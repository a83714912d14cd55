package websearch

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mikeboe/research-agent/pkg/pipeline"
)

const arxivBaseURL = "https://export.arxiv.org/api/query"

// Arxiv is a web search provider backed by the arXiv Atom API. It needs no
// credentials, which makes it the default when no Tavily key is configured.
type Arxiv struct {
	baseURL string
	client  *http.Client
}

func NewArxiv() *Arxiv {
	return &Arxiv{
		baseURL: arxivBaseURL,
		client:  &http.Client{},
	}
}

type arxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

type arxivEntry struct {
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []arxivLink `xml:"link"`
}

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []arxivEntry `xml:"entry"`
}

// Search queries the arXiv API and maps each entry to a search result. The
// PDF link is preferred as the source URL when the entry carries one.
func (a *Arxiv) Search(ctx context.Context, query string, maxResults int) ([]pipeline.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Add("search_query", query)
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("start", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned non-200 status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	return feedToResults(feed), nil
}

func feedToResults(feed arxivFeed) []pipeline.SearchResult {
	results := make([]pipeline.SearchResult, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		title := strings.TrimSpace(entry.Title)
		if title == "" {
			continue
		}

		link := ""
		for _, l := range entry.Link {
			if l.Type == "application/pdf" {
				link = l.Href
				break
			}
		}

		results = append(results, pipeline.SearchResult{
			Title:   title,
			URL:     link,
			Snippet: strings.TrimSpace(entry.Summary),
		})
	}
	return results
}
