package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infosage/backend/internal/storage/models"
)

type fakeModel struct {
	available bool
	result    *models.ResearchResult
	err       error
	gotMedia  *models.MediaAnalysis
}

func (f *fakeModel) Available() bool { return f.available }

func (f *fakeModel) Research(ctx context.Context, text string, media *models.MediaAnalysis) (*models.ResearchResult, error) {
	f.gotMedia = media
	return f.result, f.err
}

func newSerpServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		assert.Contains(t, r.URL.Query().Get("q"), "fact check")
		fmt.Fprintf(w, `{"organic_results":[
			{"title":"Debunked","link":"https://www.snopes.com/fact-check/x","snippet":"Snopes rated it false"},
			{"title":"Local report","link":"%s/page","snippet":""},
			{"title":"","link":"https://nowhere.example"}
		]}`, srv.URL)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><script>var x = 1;</script></head>
			<body><nav>menu</nav><p>Officials   denied the report.</p></body></html>`)
	})
	return srv
}

func TestClient_Search(t *testing.T) {
	srv := newSerpServer(t)
	c := NewClient(Config{SerpAPIKey: "secret", BaseURL: srv.URL + "/search", Timeout: time.Second})

	results, err := c.Search(context.Background(), "The moon landing was staged in a studio")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "fact-check", results[0].Type)
	assert.Equal(t, models.ReliabilityHigh, results[0].Reliability)
	assert.Equal(t, "Snopes rated it false", results[0].Snippet)

	assert.Equal(t, "news", results[1].Type)
	assert.Equal(t, models.ReliabilityMedium, results[1].Reliability)
	assert.Equal(t, "Officials denied the report.", results[1].Snippet)
}

func TestClient_SearchHonorsMaxResults(t *testing.T) {
	srv := newSerpServer(t)
	c := NewClient(Config{SerpAPIKey: "secret", BaseURL: srv.URL + "/search", MaxResults: 1})

	results, err := c.Search(context.Background(), "claim")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestClient_SearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{SerpAPIKey: "bad", BaseURL: srv.URL})
	_, err := c.Search(context.Background(), "claim")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestResearcher_MergesLiveResults(t *testing.T) {
	srv := newSerpServer(t)
	media := &models.MediaAnalysis{OCRText: "caption"}
	model := &fakeModel{available: true, result: &models.ResearchResult{
		SearchResults: []models.SearchResult{{Title: "From model", URL: "https://a.example"}},
		Warnings:      []string{"image reused"},
	}}
	r := NewResearcher(model, NewClient(Config{SerpAPIKey: "secret", BaseURL: srv.URL + "/search"}))

	res := r.Research(context.Background(), &models.Claim{ID: "c1", Text: "claim", MediaAnalysis: media})
	require.NotNil(t, res)
	assert.Same(t, media, model.gotMedia)
	assert.Len(t, res.SearchResults, 3)
	assert.Equal(t, "From model", res.SearchResults[0].Title)
	assert.Equal(t, []string{"image reused"}, res.Warnings)
}

func TestResearcher_ModelFailureStillUsesSearch(t *testing.T) {
	srv := newSerpServer(t)
	model := &fakeModel{available: true, err: errors.New("timeout")}
	r := NewResearcher(model, NewClient(Config{SerpAPIKey: "secret", BaseURL: srv.URL + "/search"}))

	res := r.Research(context.Background(), &models.Claim{ID: "c1", Text: "claim"})
	require.NotNil(t, res)
	assert.Len(t, res.SearchResults, 2)
	assert.Nil(t, res.ClaimAnalysis)
}

func TestResearcher_NothingAvailable(t *testing.T) {
	r := NewResearcher(&fakeModel{available: false}, NewClient(Config{}))
	assert.Nil(t, r.Research(context.Background(), &models.Claim{ID: "c1", Text: "claim"}))

	r = NewResearcher(nil, nil)
	assert.Nil(t, r.Research(context.Background(), &models.Claim{ID: "c1", Text: "claim"}))
}
