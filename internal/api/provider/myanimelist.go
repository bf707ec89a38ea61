package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2"

	"github.com/animetinder/auth/internal/conf"
	"github.com/animetinder/auth/internal/observability"
	"github.com/animetinder/auth/internal/utilities"
)

// MyAnimeList

const defaultProfileRetryInterval = 250 * time.Millisecond

type myAnimeListProvider struct {
	*oauth2.Config
	APIHost string

	client        *http.Client
	maxRetries    uint
	retryInterval time.Duration
}

type myAnimeListUser struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// NewMyAnimeListProvider creates a MyAnimeList account provider.
func NewMyAnimeListProvider(ext conf.OAuthProviderConfiguration) (OAuthProvider, error) {
	if err := ext.ValidateOAuth(); err != nil {
		return nil, err
	}

	authHost := strings.TrimSuffix(ext.URL, "/")
	apiHost := strings.TrimSuffix(ext.ApiURL, "/")

	return &myAnimeListProvider{
		Config: &oauth2.Config{
			ClientID:     ext.ClientID,
			ClientSecret: ext.Secret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authHost + "/v1/oauth2/authorize",
				TokenURL:  authHost + "/v1/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: ext.RedirectURI,
		},
		APIHost:       apiHost,
		client:        &http.Client{Timeout: ext.Timeout},
		maxRetries:    ext.ProfileMaxRetries,
		retryInterval: defaultProfileRetryInterval,
	}, nil
}

func (p *myAnimeListProvider) Name() string {
	return "mal"
}

func (p *myAnimeListProvider) AuthCodeURL(state, challenge, method string) string {
	if strings.EqualFold(method, conf.CodeChallengeMethodS256) {
		method = "S256"
	}
	return p.Config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", method),
	)
}

func (p *myAnimeListProvider) ExchangeCode(ctx context.Context, code, verifier string) (*Tokens, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	tok, err := p.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues("exchange", observability.ResultFailure).Inc()

		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil {
			return nil, &ExchangeError{Status: rErr.Response.StatusCode, Body: string(rErr.Body)}
		}
		return nil, &ExchangeError{Status: transportStatus(err), Err: err}
	}
	observability.ProviderRequestsTotal.WithLabelValues("exchange", observability.ResultSuccess).Inc()

	tokens := &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		tokens.ExpiresAt = &expiry
	}
	return tokens, nil
}

func (p *myAnimeListProvider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.retryInterval

	profile, err := backoff.Retry(ctx, func() (*Profile, error) {
		profile, err := p.fetchProfileOnce(ctx, accessToken)
		if err != nil {
			var fErr *ProfileFetchError
			if errors.As(err, &fErr) && !fErr.retryable() {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return profile, nil
	}, backoff.WithBackOff(exp), backoff.WithMaxTries(p.maxRetries+1))
	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues("profile", observability.ResultFailure).Inc()

		var fErr *ProfileFetchError
		if errors.As(err, &fErr) {
			return nil, fErr
		}
		return nil, &ProfileFetchError{Status: transportStatus(err), Err: err}
	}
	observability.ProviderRequestsTotal.WithLabelValues("profile", observability.ResultSuccess).Inc()

	return profile, nil
}

func (p *myAnimeListProvider) fetchProfileOnce(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.APIHost+"/v2/users/@me", nil)
	if err != nil {
		return nil, &ProfileFetchError{Status: http.StatusInternalServerError, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	res, err := p.client.Do(req)
	if err != nil {
		return nil, &ProfileFetchError{Status: transportStatus(err), Err: err}
	}
	defer utilities.SafeClose(res.Body)

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return nil, &ProfileFetchError{Status: res.StatusCode}
	}

	var u myAnimeListUser
	if err := json.NewDecoder(res.Body).Decode(&u); err != nil {
		return nil, &ProfileFetchError{Status: http.StatusBadGateway, Err: fmt.Errorf("decoding profile: %w", err)}
	}
	if u.ID == 0 {
		return nil, &ProfileFetchError{Status: http.StatusBadGateway, Err: errors.New("profile has no id")}
	}

	return &Profile{
		ID:      strconv.Itoa(u.ID),
		Name:    u.Name,
		Picture: u.Picture,
	}, nil
}
