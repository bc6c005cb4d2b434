package wiki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/teamloop/teamloop/internal/api"
	"github.com/teamloop/teamloop/internal/storage"
)

func wikiBackend(t *testing.T) *api.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/wiki/articles/5", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": 5, "categoryId": 1, "title": "Release checklist",
			"body": "# Steps\n\n- tag\n- `make dist`\n\n```go\nfunc main() {}\n```\n",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api.New(srv.URL)
}

func TestArticleRendering(t *testing.T) {
	m := New(wikiBackend(t).Wiki, nil)

	page, err := m.Article(context.Background(), "5")
	if err != nil {
		t.Fatal(err)
	}
	body := string(page.HTML)
	if !strings.Contains(body, "<h1") || !strings.Contains(body, "Steps") {
		t.Fatalf("heading not rendered: %s", body)
	}
	if !strings.Contains(body, "<li>tag</li>") {
		t.Fatalf("list not rendered: %s", body)
	}
	// Fenced go block goes through the highlighter (classed spans).
	if !strings.Contains(body, "chroma") {
		t.Fatalf("code block not highlighted: %s", body)
	}
}

func TestRawHTMLStaysEscaped(t *testing.T) {
	m := New(wikiBackend(t).Wiki, nil)

	out, err := m.Render("before <script>alert(1)</script> after")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "<script>") {
		t.Fatalf("raw HTML must not pass through: %s", out)
	}
}

func TestArticleSnapshotFallback(t *testing.T) {
	db, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := New(wikiBackend(t).Wiki, db).Article(context.Background(), "5"); err != nil {
		t.Fatal(err)
	}

	offline := New(api.New("http://127.0.0.1:1").Wiki, db)
	page, err := offline.Article(context.Background(), "5")
	if err != nil {
		t.Fatalf("snapshot fallback failed: %v", err)
	}
	if page.Article.Title != "Release checklist" || !strings.Contains(string(page.HTML), "Steps") {
		t.Fatalf("unexpected cached page: %+v", page.Article)
	}

	if _, err := offline.Article(context.Background(), "404"); err == nil {
		t.Fatal("unknown article without snapshot must error")
	}
}
