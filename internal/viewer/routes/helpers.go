package routes

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/teamloop/teamloop/internal/ui/render"
)

func baseVM(title, active, contentTmpl string, d Deps) render.BaseVM {
	return render.BaseVM{
		Title:       title,
		Active:      active,
		ContentTmpl: contentTmpl,
		SelfName:    safeCall(d.SelfName),
		SelfID:      safeCall(d.SelfID),
		BaseURL:     d.BaseURL,
		Debug:       d.Debug,
	}
}

func safeCall(fn func() string) string {
	if fn == nil {
		return ""
	}
	return fn()
}

// requireAuth redirects unauthenticated page requests to the login screen.
// Returns false when the caller should stop handling the request.
func requireAuth(w http.ResponseWriter, r *http.Request, d Deps) bool {
	if d.LoggedIn != nil && !d.LoggedIn() {
		http.Redirect(w, r, "/login", http.StatusFound)
		return false
	}
	return true
}

func handleGet(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	})
}

// handlePost registers a POST handler whose JSON body decodes into T.
func handlePost[T any](mux *http.ServeMux, pattern string, fn func(w http.ResponseWriter, r *http.Request, req T)) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req T
		if decodeJSON(w, r, &req) != nil {
			return
		}
		fn(w, r, req)
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		http.Error(w, "bad request body: "+err.Error(), http.StatusBadRequest)
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

func isLocalRequest(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
