package redirect

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/go-sso-client/idp"
	"github.com/pkg/errors"
)

// NewHandler serves the redirect and logout-redirect URIs of provider for hosts that receive
// redirects on a loopback listener.
func NewHandler(receiver *Receiver, provider *idp.IdentityProvider) (http.Handler, error) {
	redirectPath, err := path(provider.RedirectURI())
	if err != nil {
		return nil, err
	}
	logoutPath, err := path(provider.LogoutRedirectURI())
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(redirectPath, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if serr := receiver.HandleAuthorizationRedirect(req.Context(), req.URL.Query()); serr != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Login failed: " + serr.Code.String() + "\n"))
			return
		}
		_, _ = w.Write([]byte("Login complete. You can close this window.\n"))
	})
	r.Get(logoutPath, func(w http.ResponseWriter, req *http.Request) {
		receiver.HandleLogoutRedirect(req.Context())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Logout complete. You can close this window.\n"))
	})
	return r, nil
}

func path(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "redirect.NewHandler Parse")
	}
	if u.Path == "" {
		return "/", nil
	}
	return u.Path, nil
}
