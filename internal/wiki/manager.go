// Package wiki fetches wiki content from the backend and renders article
// markdown to HTML for the viewer. Rendered articles are snapshotted
// locally so recently read pages survive backend outages.
package wiki

import (
	"bytes"
	"context"
	"html/template"
	"log"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"

	"github.com/teamloop/teamloop/internal/api"
	"github.com/teamloop/teamloop/internal/storage"
)

// Page is an article with its markdown rendered for display.
type Page struct {
	Article api.WikiArticle
	HTML    template.HTML
}

// Manager fronts the wiki API with markdown rendering and a snapshot cache.
type Manager struct {
	api   *api.WikiAPI
	cache *storage.DB // may be nil
	md    goldmark.Markdown
}

// New creates a wiki manager. cache may be nil.
func New(wikiAPI *api.WikiAPI, cache *storage.DB) *Manager {
	// GFM tables/strikethrough plus fenced-code highlighting. Article
	// bodies are user content, so raw HTML stays escaped.
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("friendly"),
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
		),
	)
	return &Manager{api: wikiAPI, cache: cache, md: md}
}

// Categories lists wiki categories with cache fallback.
func (m *Manager) Categories(ctx context.Context) ([]api.WikiCategory, error) {
	cats, err := m.api.Categories(ctx)
	if err != nil {
		var cached []api.WikiCategory
		if m.load("categories", &cached) {
			log.Printf("WIKI: serving cached categories: %v", err)
			return cached, nil
		}
		return nil, err
	}
	m.save("categories", cats)
	return cats, nil
}

// Articles lists one category's articles (bodies omitted) with cache
// fallback.
func (m *Manager) Articles(ctx context.Context, categoryID api.ID) ([]api.WikiArticle, error) {
	key := "cat-" + categoryID.String()
	arts, err := m.api.Articles(ctx, categoryID)
	if err != nil {
		var cached []api.WikiArticle
		if m.load(key, &cached) {
			log.Printf("WIKI: serving cached article list for %s: %v", categoryID, err)
			return cached, nil
		}
		return nil, err
	}
	m.save(key, arts)
	return arts, nil
}

// Article fetches one article and renders its body. The raw article is
// snapshotted so the page can be re-rendered offline.
func (m *Manager) Article(ctx context.Context, articleID api.ID) (*Page, error) {
	key := "article-" + articleID.String()
	art, err := m.api.Article(ctx, articleID)
	if err != nil {
		var cached api.WikiArticle
		if m.load(key, &cached) {
			log.Printf("WIKI: serving cached article %s: %v", articleID, err)
			return m.page(cached)
		}
		return nil, err
	}
	m.save(key, art)
	return m.page(*art)
}

// Save creates or updates an article through the backend and refreshes its
// snapshot.
func (m *Manager) Save(ctx context.Context, art api.WikiArticle) (*Page, error) {
	saved, err := m.api.SaveArticle(ctx, art)
	if err != nil {
		return nil, err
	}
	m.save("article-"+saved.ID.String(), saved)
	return m.page(*saved)
}

// Render converts markdown to HTML with the manager's pipeline. Used for
// edit previews.
func (m *Manager) Render(markdown string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func (m *Manager) page(art api.WikiArticle) (*Page, error) {
	html, err := m.Render(art.Body)
	if err != nil {
		return nil, err
	}
	return &Page{Article: art, HTML: html}, nil
}

func (m *Manager) save(key string, v any) {
	if m.cache == nil {
		return
	}
	if err := m.cache.SaveSnapshot(storage.SnapshotWiki, key, v); err != nil {
		log.Printf("WIKI: snapshot save %s: %v", key, err)
	}
}

func (m *Manager) load(key string, v any) bool {
	if m.cache == nil {
		return false
	}
	_, ok := m.cache.LoadSnapshot(storage.SnapshotWiki, key, v)
	return ok
}
