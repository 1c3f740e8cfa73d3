package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/oauth2/github"

	"github.com/sakif/accomplo/internal/model"
)

// ProviderUser is the identity an OAuth provider vouches for, normalised
// across providers.
type ProviderUser struct {
	Provider  string
	ID        string // the provider's stable user ID
	Email     string
	Name      string
	AvatarURL string
}

// ErrNoEmail is returned when the provider does not share a verified email.
// Accounts are keyed by email, so sign-in cannot continue without one.
var ErrNoEmail = errors.New("auth: provider did not return an email address")

// OAuthProvider wraps golang.org/x/oauth2 for one provider's Authorization
// Code flow:
//
//  1. AuthURL sends the browser to the provider with a random state
//  2. the provider redirects back with a short-lived code
//  3. Exchange trades the code for an access token (server to server) and
//     uses it to fetch the user's profile
type OAuthProvider struct {
	name    string
	config  *oauth2.Config
	apiBase string
	fetch   func(ctx context.Context, client *http.Client, apiBase string) (*ProviderUser, error)
}

// NewGoogleProvider builds the Google provider. Scopes: openid, email, profile.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *OAuthProvider {
	return &OAuthProvider{
		name: model.ProviderGoogle,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoints.Google,
		},
		apiBase: "https://openidconnect.googleapis.com",
		fetch:   fetchGoogleUser,
	}
}

// NewFacebookProvider builds the Facebook provider. Scopes: email,
// public_profile.
func NewFacebookProvider(clientID, clientSecret, callbackURL string) *OAuthProvider {
	return &OAuthProvider{
		name: model.ProviderFacebook,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"email", "public_profile"},
			Endpoint:     endpoints.Facebook,
		},
		apiBase: "https://graph.facebook.com",
		fetch:   fetchFacebookUser,
	}
}

// NewGitHubProvider builds the GitHub provider. Scopes: read:user,
// user:email (needed when the user hides their email on their profile).
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *OAuthProvider {
	return &OAuthProvider{
		name: model.ProviderGitHub,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: "https://api.github.com",
		fetch:   fetchGitHubUser,
	}
}

// Name is the provider key used in routes and stored on the user.
func (p *OAuthProvider) Name() string {
	return p.name
}

// AuthURL returns the provider's consent page URL. The state must be echoed
// back on the callback; the handler checks it against a cookie to stop
// CSRF logins.
func (p *OAuthProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the flow: code → access token → ProviderUser.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*ProviderUser, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging %s OAuth code: %w", p.name, err)
	}

	// The client adds "Authorization: Bearer <token>" to every request.
	client := p.config.Client(ctx, token)

	u, err := p.fetch(ctx, client, p.apiBase)
	if err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("auth: %s returned a user without an id", p.name)
	}
	if u.Email == "" {
		return nil, ErrNoEmail
	}
	u.Provider = p.name
	u.Email = strings.ToLower(u.Email)
	return u, nil
}

// getJSON GETs url with the authorised client and decodes the body into v.
func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("auth: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: %s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("auth: decoding %s: %w", url, err)
	}
	return nil
}

// https://developers.google.com/identity/openid-connect/openid-connect#obtainuserinfo
func fetchGoogleUser(ctx context.Context, client *http.Client, apiBase string) (*ProviderUser, error) {
	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := getJSON(ctx, client, apiBase+"/v1/userinfo", &info); err != nil {
		return nil, err
	}
	u := &ProviderUser{ID: info.Sub, Name: info.Name, AvatarURL: info.Picture}
	if info.EmailVerified {
		u.Email = info.Email
	}
	return u, nil
}

// https://developers.facebook.com/docs/graph-api/reference/user
func fetchFacebookUser(ctx context.Context, client *http.Client, apiBase string) (*ProviderUser, error) {
	var info struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := getJSON(ctx, client, apiBase+"/me?fields=id,name,email,picture", &info); err != nil {
		return nil, err
	}
	return &ProviderUser{
		ID:        info.ID,
		Email:     info.Email,
		Name:      info.Name,
		AvatarURL: info.Picture.Data.URL,
	}, nil
}

// https://docs.github.com/en/rest/users/users#get-the-authenticated-user
func fetchGitHubUser(ctx context.Context, client *http.Client, apiBase string) (*ProviderUser, error) {
	var info struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, apiBase+"/user", &info); err != nil {
		return nil, err
	}
	if info.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	u := &ProviderUser{
		ID:        strconv.FormatInt(info.ID, 10),
		Email:     info.Email,
		Name:      info.Name,
		AvatarURL: info.AvatarURL,
	}
	if u.Name == "" {
		u.Name = info.Login
	}

	// A hidden profile email comes back empty; the primary verified address
	// is still listed under /user/emails with the user:email scope.
	if u.Email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, apiBase+"/user/emails", &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				u.Email = e.Email
				break
			}
		}
	}
	return u, nil
}
