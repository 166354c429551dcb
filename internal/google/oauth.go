package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"fxcalsync/internal/calstore"
)

// OutOfBandRedirect is used by the paste-code flow of the CLI.
const OutOfBandRedirect = "urn:ietf:wg:oauth:2.0:oob"

// OAuthConfig returns the app-level OAuth client shared by every user.
// Only the events scope is requested; the sync never reads other calendar data.
func OAuthConfig(clientID, clientSecret, redirectURL string) (*oauth2.Config, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("google OAuth credentials not configured, set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")
	}
	if redirectURL == "" {
		redirectURL = OutOfBandRedirect
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{calendar.CalendarEventsScope},
		Endpoint:     google.Endpoint,
	}, nil
}

// AuthCodeURL is the consent page for a new user. Offline access with a forced
// consent prompt makes Google hand out a refresh token every time.
func AuthCodeURL(config *oauth2.Config, state string) string {
	return config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// TokenFromWeb exchanges an authorization code pasted by the user for a token.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	token, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, errors.New("google did not return a refresh token, revoke the app's access and try again")
	}
	return token, nil
}

// classifyTokenError maps a failed refresh-token exchange onto a calstore kind.
// invalid_grant and other 4xx answers mean the credential is revoked or expired.
// Transport failures never reach the token endpoint, so they are transient.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		status := re.Response.StatusCode
		switch {
		case status >= 400 && status < 500 && status != http.StatusTooManyRequests:
			return calstore.Wrap(calstore.KindAuth, "connect", err)
		default:
			return calstore.Wrap(calstore.KindForStatus(status), "connect", err)
		}
	}
	if calstore.IsNetworkFault(err) {
		return calstore.Wrap(calstore.KindTransient, "connect", err)
	}
	return calstore.Wrap(calstore.KindPermanent, "connect", err)
}
