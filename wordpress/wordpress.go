// Package wordpress fetches and normalizes content from the WordPress GraphQL backend.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/BrandonHVX/heavy-status/pkg/news"
)

// DefaultEndpoint is the production GraphQL endpoint.
const DefaultEndpoint = "https://heavy-status.com/graphql"

// FetchError indicates the endpoint was unreachable or returned a non-2xx status.
type FetchError struct {
	Err    error
	URL    string
	Status int
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError checks if an error is a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// QueryError indicates the GraphQL response carried an errors array.
// The first error message is surfaced.
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string {
	return "graphql: " + e.Message
}

// IsQueryError checks if an error is a QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

// Client issues queries against the WordPress GraphQL endpoint.
type Client struct {
	client   *http.Client
	logger   *slog.Logger
	endpoint string
}

// New creates a new content client.
func New(endpoint string, client *http.Client, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		client:   client,
		logger:   logger,
	}
}

const postFields = `
  databaseId
  title
  slug
  date
  excerpt
  content
  featuredImage {
    node {
      sourceUrl
      altText
    }
  }
  categories {
    nodes {
      name
      slug
    }
  }
  tags {
    nodes {
      name
      slug
    }
  }
  author {
    node {
      name
      avatar {
        url
      }
    }
  }
`

type gqlRequest struct {
	Variables map[string]any `json:"variables,omitempty"`
	Query     string         `json:"query"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// query executes one GraphQL request and decodes the data payload into out.
func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	var envelope gqlEnvelope

	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")

			startTime := time.Now()
			resp, err := c.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				c.logger.Warn("GraphQL request failed, will retry",
					"endpoint", c.endpoint,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return &FetchError{URL: c.endpoint, Err: err}
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				c.logger.Warn("GraphQL endpoint returned non-2xx status, will retry",
					"endpoint", c.endpoint,
					"status_code", resp.StatusCode)
				return &FetchError{URL: c.endpoint, Status: resp.StatusCode}
			}

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return &FetchError{URL: c.endpoint, Err: err}
			}

			if err := json.Unmarshal(data, &envelope); err != nil {
				return retry.Unrecoverable(&QueryError{Message: "malformed response: " + err.Error()})
			}

			c.logger.Debug("GraphQL request completed",
				"endpoint", c.endpoint,
				"duration_ms", duration.Milliseconds(),
				"bytes", len(data))

			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying GraphQL request after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return err
	}

	if len(envelope.Errors) > 0 {
		msg := envelope.Errors[0].Message
		if msg == "" {
			msg = "GraphQL error"
		}
		return &QueryError{Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return &QueryError{Message: "malformed data payload: " + err.Error()}
		}
	}

	return nil
}

// Raw response shapes. Every field may be absent; normalization fills defaults.

type gqlImageNode struct {
	SourceURL string `json:"sourceUrl"`
	AltText   string `json:"altText"`
}

type gqlTermLite struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type gqlTerm struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
}

type gqlPost struct {
	FeaturedImage *struct {
		Node *gqlImageNode `json:"node"`
	} `json:"featuredImage"`
	Categories *struct {
		Nodes []gqlTermLite `json:"nodes"`
	} `json:"categories"`
	Tags *struct {
		Nodes []gqlTermLite `json:"nodes"`
	} `json:"tags"`
	Author *struct {
		Node *struct {
			Name   string `json:"name"`
			Avatar *struct {
				URL string `json:"url"`
			} `json:"avatar"`
		} `json:"node"`
	} `json:"author"`
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Slug       string      `json:"slug"`
	Date       string      `json:"date"`
	Excerpt    string      `json:"excerpt"`
	Content    string      `json:"content"`
	DatabaseID json.Number `json:"databaseId"`
}

type gqlPostList struct {
	Posts struct {
		Nodes []gqlPost `json:"nodes"`
	} `json:"posts"`
}

// parseDate accepts both the zoneless layout WPGraphQL emits and RFC3339.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

// normalize converts a raw node into a fully-populated Post. All fallbacks
// live here so downstream code never re-implements the chain.
func normalize(n gqlPost) news.Post {
	p := news.Post{
		ID:         n.DatabaseID.String(),
		Title:      n.Title,
		Slug:       n.Slug,
		Date:       parseDate(n.Date),
		Excerpt:    n.Excerpt,
		Content:    n.Content,
		Categories: []news.TermLite{},
		Tags:       []news.TermLite{},
	}
	if p.ID == "" || p.ID == "0" {
		p.ID = n.ID
	}
	if n.FeaturedImage != nil && n.FeaturedImage.Node != nil {
		p.ImageURL = n.FeaturedImage.Node.SourceURL
		p.ImageAlt = n.FeaturedImage.Node.AltText
	}
	if n.Categories != nil {
		for _, c := range n.Categories.Nodes {
			p.Categories = append(p.Categories, news.TermLite{Name: c.Name, Slug: c.Slug})
		}
	}
	if n.Tags != nil {
		for _, t := range n.Tags.Nodes {
			p.Tags = append(p.Tags, news.TermLite{Name: t.Name, Slug: t.Slug})
		}
	}
	if n.Author != nil && n.Author.Node != nil {
		p.Author = n.Author.Node.Name
		if n.Author.Node.Avatar != nil {
			p.AuthorIcon = n.Author.Node.Avatar.URL
		}
	}
	return p
}

func normalizeAll(nodes []gqlPost) []news.Post {
	posts := make([]news.Post, 0, len(nodes))
	for _, n := range nodes {
		posts = append(posts, normalize(n))
	}
	return posts
}

// categoryForPageType maps the app's logical page types onto category slugs.
func categoryForPageType(pageType string) string {
	switch pageType {
	case "featured":
		return "breaking-news"
	case "highlights":
		return "highlights"
	case "live":
		return "community-news"
	default:
		return ""
	}
}

// Posts fetches posts for a logical page type ("featured", "highlights",
// "live", "explore" or "" for the default feed).
func (c *Client) Posts(ctx context.Context, pageType string, count int) ([]news.Post, error) {
	if category := categoryForPageType(pageType); category != "" {
		return c.PostsByCategory(ctx, category, count)
	}

	query := fmt.Sprintf(`
    query GetPosts($count: Int!) {
      posts(first: $count) {
        nodes { %s }
      }
    }
  `, postFields)

	var out gqlPostList
	if err := c.query(ctx, query, map[string]any{"count": count}, &out); err != nil {
		return nil, err
	}
	return normalizeAll(out.Posts.Nodes), nil
}

// PostsByCategory fetches posts belonging to a category slug.
func (c *Client) PostsByCategory(ctx context.Context, categorySlug string, count int) ([]news.Post, error) {
	query := fmt.Sprintf(`
    query GetCategoryPosts($count: Int!, $category: String!) {
      posts(first: $count, where: { categoryName: $category }) {
        nodes { %s }
      }
    }
  `, postFields)

	var out gqlPostList
	if err := c.query(ctx, query, map[string]any{"count": count, "category": categorySlug}, &out); err != nil {
		return nil, err
	}
	return normalizeAll(out.Posts.Nodes), nil
}

// PostBySlug fetches a single post. Returns nil without error when the slug
// does not resolve to a post.
func (c *Client) PostBySlug(ctx context.Context, slug string) (*news.Post, error) {
	query := fmt.Sprintf(`
    query GetPost($slug: ID!) {
      post(id: $slug, idType: SLUG) { %s }
    }
  `, postFields)

	var out struct {
		Post *gqlPost `json:"post"`
	}
	if err := c.query(ctx, query, map[string]any{"slug": slug}, &out); err != nil {
		return nil, err
	}
	if out.Post == nil {
		return nil, nil
	}
	p := normalize(*out.Post)
	return &p, nil
}

// RecentPosts fetches the newest posts published after the cutoff date,
// ordered newest first. WPGraphQL's dateQuery is day-granular, so callers
// that need a tighter window filter the result themselves.
func (c *Client) RecentPosts(ctx context.Context, count int, cutoff time.Time) ([]news.Post, error) {
	utc := cutoff.UTC()
	query := fmt.Sprintf(`
    query RecentPosts {
      posts(
        first: %d,
        where: {
          orderby: { field: DATE, order: DESC },
          dateQuery: { after: { year: %d, month: %d, day: %d } }
        }
      ) {
        nodes { %s }
      }
    }
  `, count, utc.Year(), int(utc.Month()), utc.Day(), postFields)

	var out gqlPostList
	if err := c.query(ctx, query, nil, &out); err != nil {
		return nil, err
	}
	return normalizeAll(out.Posts.Nodes), nil
}

// Categories fetches all non-empty categories.
func (c *Client) Categories(ctx context.Context) ([]news.Term, error) {
	query := `
    query GetCategories {
      categories(first: 20) {
        nodes {
          name
          slug
          count
        }
      }
    }
  `

	var out struct {
		Categories struct {
			Nodes []gqlTerm `json:"nodes"`
		} `json:"categories"`
	}
	if err := c.query(ctx, query, nil, &out); err != nil {
		return nil, err
	}

	terms := make([]news.Term, 0, len(out.Categories.Nodes))
	for _, n := range out.Categories.Nodes {
		if n.Count <= 0 {
			continue
		}
		terms = append(terms, news.Term{Name: n.Name, Slug: n.Slug, Count: n.Count})
	}
	return terms, nil
}

// Search matches posts, categories and tags against a search term.
func (c *Client) Search(ctx context.Context, term string) (*news.SearchResult, error) {
	query := fmt.Sprintf(`
    query SearchContent($search: String!) {
      posts(first: 10, where: { search: $search }) {
        nodes { %s }
      }
      categories(first: 10, where: { search: $search }) {
        nodes {
          name
          slug
          count
        }
      }
      tags(first: 10, where: { search: $search }) {
        nodes {
          name
          slug
          count
        }
      }
    }
  `, postFields)

	var out struct {
		Posts struct {
			Nodes []gqlPost `json:"nodes"`
		} `json:"posts"`
		Categories struct {
			Nodes []gqlTerm `json:"nodes"`
		} `json:"categories"`
		Tags struct {
			Nodes []gqlTerm `json:"nodes"`
		} `json:"tags"`
	}
	if err := c.query(ctx, query, map[string]any{"search": term}, &out); err != nil {
		return nil, err
	}

	result := &news.SearchResult{
		Posts:      normalizeAll(out.Posts.Nodes),
		Categories: make([]news.Term, 0, len(out.Categories.Nodes)),
		Tags:       make([]news.Term, 0, len(out.Tags.Nodes)),
	}
	for _, n := range out.Categories.Nodes {
		result.Categories = append(result.Categories, news.Term{Name: n.Name, Slug: n.Slug, Count: n.Count})
	}
	for _, n := range out.Tags.Nodes {
		result.Tags = append(result.Tags, news.Term{Name: n.Name, Slug: n.Slug, Count: n.Count})
	}
	return result, nil
}

// SitemapPosts fetches the slim post listing used by the feed and sitemap.
func (c *Client) SitemapPosts(ctx context.Context) ([]news.Post, error) {
	query := `
    query GetAllPosts {
      posts(first: 100) {
        nodes {
          slug
          date
          title
        }
      }
    }
  `

	var out gqlPostList
	if err := c.query(ctx, query, nil, &out); err != nil {
		return nil, err
	}
	return normalizeAll(out.Posts.Nodes), nil
}
