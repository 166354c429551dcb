package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"fxcalsync/internal/calstore"
	"fxcalsync/internal/models"
	"fxcalsync/internal/retry"
)

// BackendFunc opens a calendar store on top of an authenticated HTTP client.
type BackendFunc func(ctx context.Context, client *http.Client) (calstore.Store, error)

// Connector authenticates users with their stored refresh token and opens their calendar.
type Connector struct {
	logger  *slog.Logger
	config  *oauth2.Config
	backend BackendFunc
	retry   retry.Policy
}

// NewConnector creates a Connector. config holds the app client id and secret.
func NewConnector(logger *slog.Logger, config *oauth2.Config, backend BackendFunc, policy retry.Policy) *Connector {
	return &Connector{logger: logger, config: config, backend: backend, retry: policy}
}

// Connect exchanges the user's refresh token for an access token and returns a store
// writing to the user's calendar. The exchange happens here, before any write, so a
// revoked or expired credential fails with calstore.KindAuth.
func (c *Connector) Connect(ctx context.Context, user models.UserPreference) (calstore.Store, error) {
	if user.RefreshToken == "" {
		return nil, calstore.Wrap(calstore.KindAuth, "connect", errors.New("no refresh token stored"))
	}

	source := c.config.TokenSource(ctx, &oauth2.Token{RefreshToken: user.RefreshToken})

	var token *oauth2.Token
	err := retry.Do(ctx, c.retry, func(context.Context) error {
		var err error
		token, err = source.Token()
		if err != nil {
			return classifyTokenError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}
	c.logger.Debug("Refreshed access token.", "user", user.Identity, "expiry", token.Expiry)

	client := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, source))
	store, err := c.backend(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to open calendar: %w", err)
	}
	return store, nil
}
