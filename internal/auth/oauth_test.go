package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeProviderServer serves a token endpoint plus whatever API routes the
// test registers, and points p at it.
func fakeProviderServer(t *testing.T, p *OAuthProvider, routes map[string]string) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
	})
	for path, body := range routes {
		path, body := path, body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	p.apiBase = srv.URL
}

func TestAuthURL_CarriesStateAndClient(t *testing.T) {
	p := NewGoogleProvider("client-id", "secret", "http://localhost:8080/auth/google/callback")

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "http://localhost:8080/auth/google/callback", q.Get("redirect_uri"))
}

func TestExchange_Google(t *testing.T) {
	p := NewGoogleProvider("id", "secret", "http://cb")
	fakeProviderServer(t, p, map[string]string{
		"/v1/userinfo": `{"sub":"g-1","email":"Ada@Example.com","email_verified":true,"name":"Ada","picture":"http://img"}`,
	})

	u, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, &ProviderUser{Provider: "google", ID: "g-1", Email: "ada@example.com", Name: "Ada", AvatarURL: "http://img"}, u)
}

func TestExchange_GoogleUnverifiedEmail(t *testing.T) {
	p := NewGoogleProvider("id", "secret", "http://cb")
	fakeProviderServer(t, p, map[string]string{
		"/v1/userinfo": `{"sub":"g-1","email":"ada@example.com","email_verified":false}`,
	})

	_, err := p.Exchange(context.Background(), "code")
	assert.True(t, errors.Is(err, ErrNoEmail))
}

func TestExchange_Facebook(t *testing.T) {
	p := NewFacebookProvider("id", "secret", "http://cb")
	fakeProviderServer(t, p, map[string]string{
		"/me": `{"id":"fb-7","name":"Grace","email":"grace@example.com","picture":{"data":{"url":"http://pic"}}}`,
	})

	u, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "facebook", u.Provider)
	assert.Equal(t, "fb-7", u.ID)
	assert.Equal(t, "http://pic", u.AvatarURL)
}

func TestExchange_GitHubFallsBackToEmailList(t *testing.T) {
	p := NewGitHubProvider("id", "secret", "http://cb")
	fakeProviderServer(t, p, map[string]string{
		"/user": `{"id":42,"login":"octo","email":null,"avatar_url":"http://a"}`,
		"/user/emails": `[
			{"email":"old@example.com","primary":false,"verified":true},
			{"email":"octo@example.com","primary":true,"verified":true}
		]`,
	})

	u, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "42", u.ID)
	assert.Equal(t, "octo", u.Name)
	assert.Equal(t, "octo@example.com", u.Email)
}

func TestExchange_GitHubInvalidUser(t *testing.T) {
	p := NewGitHubProvider("id", "secret", "http://cb")
	fakeProviderServer(t, p, map[string]string{
		"/user": `{"id":0}`,
	})

	_, err := p.Exchange(context.Background(), "code")
	assert.Error(t, err)
}
