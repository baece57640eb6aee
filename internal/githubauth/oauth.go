// Package githubauth implements the GitHub OAuth2 login dance that mints
// the relay's own signed identity tokens.
//
// Adapted from the pack's OIDC-discovery authenticator pattern
// (state-cookie CSRF, gin login/callback handler shape) but simplified to
// GitHub's plain OAuth2 endpoint, since GitHub does not speak OIDC.
package githubauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/opensync/docrelay/internal/auth"
	"github.com/opensync/docrelay/internal/logging"
)

const stateCookieName = "docrelay_oauth_state"

// tokenTTL is how long a minted identity token remains valid.
const tokenTTL = 24 * time.Hour

// githubUser is the subset of GitHub's /user response the relay cares about.
type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// Handler implements the /auth/github and /auth/github/callback routes.
type Handler struct {
	oauthConfig *oauth2.Config
	validator   *auth.Validator
	httpClient  *http.Client
}

// NewHandler builds a githubauth Handler. callbackURL must match the
// OAuth application's configured redirect URL.
func NewHandler(clientID, clientSecret, callbackURL string, validator *auth.Validator) *Handler {
	return &Handler{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     github.Endpoint,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user"},
		},
		validator:  validator,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// LoginHandler redirects the browser to GitHub's authorize endpoint,
// stashing a random state value in a short-lived cookie for CSRF protection.
func (h *Handler) LoginHandler(c *gin.Context) {
	state := uuid.New().String()
	c.SetCookie(stateCookieName, state, 600, "/", "", false, true)
	c.Redirect(http.StatusFound, h.oauthConfig.AuthCodeURL(state))
}

// CallbackHandler exchanges the authorization code, fetches the GitHub
// profile, and mints a signed identity token.
func (h *Handler) CallbackHandler(c *gin.Context) {
	expectedState, err := c.Cookie(stateCookieName)
	if err != nil || expectedState == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing oauth state"})
		return
	}
	c.SetCookie(stateCookieName, "", -1, "/", "", false, true)

	if c.Query("state") != expectedState {
		c.JSON(http.StatusBadRequest, gin.H{"error": "oauth state mismatch"})
		return
	}

	if errParam := c.Query("error"); errParam != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errParam})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}

	ctx := context.WithValue(c.Request.Context(), oauth2.HTTPClient, h.httpClient)
	token, err := h.oauthConfig.Exchange(ctx, code)
	if err != nil {
		logging.Error(ctx, "github oauth exchange failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to exchange authorization code"})
		return
	}

	user, err := h.fetchUser(ctx, token)
	if err != nil {
		logging.Error(ctx, "github profile fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch github profile"})
		return
	}

	subject := fmt.Sprintf("github:%d", user.ID)
	identityToken, err := h.validator.IssueToken(subject, user.Login, user.Name, user.AvatarURL, tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue identity token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": identityToken, "username": user.Login})
}

func (h *Handler) fetchUser(ctx context.Context, token *oauth2.Token) (*githubUser, error) {
	client := h.oauthConfig.Client(ctx, token)
	resp, err := client.Get("https://api.github.com/user")
	if err != nil {
		return nil, fmt.Errorf("githubauth: request user profile: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("githubauth: unexpected status %d: %s", resp.StatusCode, body)
	}

	var user githubUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("githubauth: decode user profile: %w", err)
	}
	return &user, nil
}
