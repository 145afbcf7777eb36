package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/pkg/logger"
	"github.com/infosage/backend/pkg/utils"
)

const (
	defaultBaseURL = "https://serpapi.com/search"
	snippetLimit   = 300
	maxPageBytes   = 1 << 20
)

// factCheckDomains are outlets whose results are treated as high
// reliability fact-checks.
var factCheckDomains = []string{
	"snopes.com",
	"politifact.com",
	"factcheck.org",
	"fullfact.org",
	"afp.com",
	"reuters.com",
	"apnews.com",
	"africacheck.org",
}

type Config struct {
	SerpAPIKey string
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
}

// Client queries SerpAPI for live results about a claim.
type Client struct {
	serpAPIKey string
	baseURL    string
	maxResults int
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		serpAPIKey: cfg.SerpAPIKey,
		baseURL:    cfg.BaseURL,
		maxResults: cfg.MaxResults,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.serpAPIKey != ""
}

// Search returns organic results for a fact-check query built from text.
func (c *Client) Search(ctx context.Context, text string) ([]models.SearchResult, error) {
	query := "fact check " + utils.FirstWords(text, 12)
	logger.Info("Performing web search", zap.String("query", query))

	params := url.Values{}
	params.Add("q", query)
	params.Add("api_key", c.serpAPIKey)
	params.Add("num", fmt.Sprintf("%d", c.maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var searchResp struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"organic_results"`
	}
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]models.SearchResult, 0, len(searchResp.OrganicResults))
	for _, r := range searchResp.OrganicResults {
		if r.Title == "" || r.Link == "" {
			continue
		}
		if len(results) == c.maxResults {
			break
		}

		snippet := r.Snippet
		if snippet == "" {
			scraped, err := c.scrapeSummary(ctx, r.Link)
			if err != nil {
				logger.Warn("Failed to scrape content", zap.String("url", r.Link), zap.Error(err))
			}
			snippet = scraped
		}

		result := models.SearchResult{
			Title:       r.Title,
			URL:         r.Link,
			Type:        "news",
			Reliability: models.ReliabilityMedium,
			Snippet:     snippet,
			Date:        r.Date,
		}
		if isFactCheckDomain(r.Link) {
			result.Type = "fact-check"
			result.Reliability = models.ReliabilityHigh
		}
		results = append(results, result)
	}

	logger.Info("Web search completed", zap.Int("results", len(results)))
	return results, nil
}

// scrapeSummary returns the page's meta description, or the start of its
// body text.
func (c *Client) scrapeSummary(ctx context.Context, urlStr string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; InfoSageBot/1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}

	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok && strings.TrimSpace(desc) != "" {
		return utils.Truncate(strings.TrimSpace(desc), snippetLimit, "..."), nil
	}

	doc.Find("script, style, nav, footer, header").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	return utils.Truncate(text, snippetLimit, "..."), nil
}

func isFactCheckDomain(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range factCheckDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
