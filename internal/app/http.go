package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/oauth"
)

// Handler serves the OAuth redirect endpoints, health, and metrics.
//
//	GET /healthz
//	GET /metrics
//	GET /oauth/{provider}/authorize?user=ID   redirects to the consent page
//	GET /oauth/{provider}/callback?code=&state=
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /oauth/{provider}/authorize", a.handleAuthorize)
	mux.HandleFunc("GET /oauth/{provider}/callback", a.handleCallback)
	return mux
}

func (a *App) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	provider, err := model.ParseProvider(r.PathValue("provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing user parameter"))
		return
	}

	url, err := a.Tokens.AuthorizationURL(provider, userID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (a *App) handleCallback(w http.ResponseWriter, r *http.Request) {
	provider, err := model.ParseProvider(r.PathValue("provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, errors.New("authorization denied: "+e))
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing code or state"))
		return
	}

	acct, err := a.Linker.Link(r.Context(), provider, code, state)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, oauth.ErrInvalidState) || errors.Is(err, oauth.ErrNoRefreshToken) {
			status = http.StatusBadRequest
		}
		a.Logger.Warn("account link failed", zap.String("provider", string(provider)), zap.Error(err))
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, acct)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
