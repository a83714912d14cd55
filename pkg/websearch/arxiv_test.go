package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const arxivSampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <title>  Attention Is All You Need </title>
    <summary>
      We propose a new network architecture, the Transformer.
    </summary>
    <published>2017-06-12T00:00:00Z</published>
    <link href="http://arxiv.org/abs/1706.03762" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/1706.03762" rel="related" type="application/pdf"/>
  </entry>
  <entry>
    <title>Untitled follow-up</title>
    <summary>No PDF link on this one.</summary>
    <published>2018-01-01T00:00:00Z</published>
    <link href="http://arxiv.org/abs/1801.00001" rel="alternate" type="text/html"/>
  </entry>
  <entry>
    <title>   </title>
    <summary>Entry without a title is skipped.</summary>
  </entry>
</feed>`

func TestArxivSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "transformer architectures", q.Get("search_query"))
		assert.Equal(t, "2", q.Get("max_results"))
		assert.Equal(t, "0", q.Get("start"))

		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(arxivSampleFeed))
	}))
	defer srv.Close()

	a := &Arxiv{baseURL: srv.URL, client: srv.Client()}
	results, err := a.Search(context.Background(), "transformer architectures", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Attention Is All You Need", results[0].Title)
	assert.Equal(t, "http://arxiv.org/pdf/1706.03762", results[0].URL)
	assert.Equal(t, "We propose a new network architecture, the Transformer.", results[0].Snippet)

	// No PDF link means no source URL, but the entry is still usable.
	assert.Equal(t, "Untitled follow-up", results[1].Title)
	assert.Empty(t, results[1].URL)
}

func TestArxivSearchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("maintenance"))
	}))
	defer srv.Close()

	a := &Arxiv{baseURL: srv.URL, client: srv.Client()}
	_, err := a.Search(context.Background(), "anything", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestArxivSearchBadXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<feed><entry>"))
	}))
	defer srv.Close()

	a := &Arxiv{baseURL: srv.URL, client: srv.Client()}
	_, err := a.Search(context.Background(), "anything", 5)
	require.Error(t, err)
}
