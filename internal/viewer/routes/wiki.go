package routes

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/teamloop/teamloop/internal/api"
	"github.com/teamloop/teamloop/internal/ui/render"
)

func registerWikiRoutes(mux *http.ServeMux, d Deps) {
	// GET /wiki?cat=ID — category browser.
	handleGet(mux, "/wiki", func(w http.ResponseWriter, r *http.Request) {
		if !requireAuth(w, r, d) {
			return
		}
		cats, err := d.Wiki.Categories(r.Context())
		if err != nil {
			log.Printf("WIKI: categories: %v", err)
		}

		selected := api.ID(r.URL.Query().Get("cat"))
		if selected == "" && len(cats) > 0 {
			selected = cats[0].ID
		}

		var articles []api.WikiArticle
		if selected != "" {
			if articles, err = d.Wiki.Articles(r.Context(), selected); err != nil {
				log.Printf("WIKI: articles for %s: %v", selected, err)
			}
		}

		render.Render(w, render.WikiVM{
			BaseVM:     baseVM("Wiki", "wiki", "wiki", d),
			Categories: cats,
			Articles:   articles,
			Selected:   selected,
		})
	})

	// GET /wiki/{id} — rendered article.
	mux.HandleFunc("/wiki/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !requireAuth(w, r, d) {
			return
		}
		articleID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/wiki/"), "/")
		if articleID == "" || strings.Contains(articleID, "/") {
			http.NotFound(w, r)
			return
		}
		page, err := d.Wiki.Article(r.Context(), api.ID(articleID))
		if err != nil {
			http.Error(w, fmt.Sprintf("article unavailable: %v", err), http.StatusBadGateway)
			return
		}
		render.Render(w, render.WikiArticleVM{
			BaseVM:  baseVM(page.Article.Title, "wiki", "wiki_article", d),
			Article: page.Article,
			HTML:    page.HTML,
		})
	})

	// POST /api/wiki/save — create or update an article.
	handlePost(mux, "/api/wiki/save", func(w http.ResponseWriter, r *http.Request, req struct {
		ID         string `json:"id"`
		CategoryID string `json:"categoryId"`
		Title      string `json:"title"`
		Body       string `json:"body"`
	}) {
		if req.Title == "" || req.CategoryID == "" {
			http.Error(w, "missing title or categoryId", http.StatusBadRequest)
			return
		}
		page, err := d.Wiki.Save(r.Context(), api.WikiArticle{
			ID:         api.ID(req.ID),
			CategoryID: api.ID(req.CategoryID),
			Title:      req.Title,
			Body:       req.Body,
		})
		if err != nil {
			http.Error(w, fmt.Sprintf("save failed: %v", err), http.StatusBadGateway)
			return
		}
		writeJSON(w, page.Article)
	})
}
