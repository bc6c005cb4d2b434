package routes

import (
	"log"
	"net/http"
	"net/url"

	"github.com/teamloop/teamloop/internal/ui/render"
)

// registerAuthRoutes wires the login screen and the form handlers behind it.
// These are plain form posts so the login page works without any JS.
func registerAuthRoutes(mux *http.ServeMux, d Deps) {
	handleGet(mux, "/login", func(w http.ResponseWriter, r *http.Request) {
		if d.LoggedIn != nil && d.LoggedIn() {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		render.RenderStandalone(w, "login", render.LoginVM{
			Title: "Sign in",
			Error: r.URL.Query().Get("err"),
		})
	})

	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		email := r.FormValue("email")
		password := r.FormValue("password")
		if email == "" || password == "" {
			loginFailed(w, r, "email and password are required")
			return
		}

		res, err := d.API.Auth.Login(r.Context(), email, password)
		if err != nil {
			log.Printf("AUTH: login failed for %s: %v", email, err)
			loginFailed(w, r, "sign in failed, check your credentials")
			return
		}
		if d.SetAuth != nil {
			if err := d.SetAuth(res.Token, &res.User); err != nil {
				log.Printf("AUTH: installing session: %v", err)
			}
		}
		http.Redirect(w, r, "/", http.StatusFound)
	})

	mux.HandleFunc("/api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		first := r.FormValue("first_name")
		last := r.FormValue("last_name")
		email := r.FormValue("email")
		password := r.FormValue("password")
		if first == "" || email == "" || password == "" {
			loginFailed(w, r, "name, email and password are required")
			return
		}

		res, err := d.API.Auth.Register(r.Context(), first, last, email, password)
		if err != nil {
			log.Printf("AUTH: register failed for %s: %v", email, err)
			loginFailed(w, r, "registration failed")
			return
		}
		if d.SetAuth != nil {
			if err := d.SetAuth(res.Token, &res.User); err != nil {
				log.Printf("AUTH: installing session: %v", err)
			}
		}
		http.Redirect(w, r, "/", http.StatusFound)
	})

	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if d.ClearAuth != nil {
			d.ClearAuth()
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	})
}

func loginFailed(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, "/login?err="+url.QueryEscape(msg), http.StatusFound)
}
