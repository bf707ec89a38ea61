package conf

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	defer os.Clearenv()
	os.Exit(m.Run())
}

func setRequiredEnv(t *testing.T) {
	t.Setenv("AUTH_SITE_URL", "http://localhost:5173/")
	t.Setenv("AUTH_DB_DATABASE_URL", "postgres://localhost/fake")
	t.Setenv("AUTH_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("API_EXTERNAL_URL", "http://localhost:8081")
}

func TestGlobal(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTH_API_REQUEST_ID_HEADER", "X-Request-ID")
	t.Setenv("AUTH_EXTERNAL_MAL_CLIENT_ID", "client")
	t.Setenv("AUTH_EXTERNAL_MAL_CODE_CHALLENGE_METHOD", "S256")

	gc, err := LoadGlobal("")
	require.NoError(t, err)
	require.NotNil(t, gc)

	assert.Equal(t, "X-Request-ID", gc.API.RequestIDHeader)
	assert.Equal(t, "client", gc.External.MyAnimeList.ClientID)
	assert.Equal(t, CodeChallengeMethodS256, gc.External.MyAnimeList.CodeChallengeMethod)
	assert.Equal(t, "http://localhost:5173", gc.SiteURL)
	assert.Equal(t, "http://localhost:5173/home", gc.HomeURL())
	assert.Equal(t, []string{"http://localhost:5173"}, gc.CORS.AllowedOrigins)
}

func TestGlobalDefaults(t *testing.T) {
	setRequiredEnv(t)

	gc, err := LoadGlobal("")
	require.NoError(t, err)

	assert.Equal(t, 60*time.Minute, gc.JWT.Exp)
	assert.Equal(t, 30*24*time.Hour, gc.Sessions.RefreshTokenTTL)
	assert.Equal(t, 10*time.Minute, gc.Sessions.FlowStateTTL)
	assert.Equal(t, 15*time.Minute, gc.Cookie.AccessTokenMaxAge)
	assert.True(t, gc.Cookie.AccessTokenHTTPOnly)
	assert.Equal(t, CodeChallengeMethodPlain, gc.External.MyAnimeList.CodeChallengeMethod)
	assert.Equal(t, 10*time.Second, gc.External.MyAnimeList.Timeout)
	assert.Equal(t, 60*time.Second, gc.API.MaxRequestDuration)
	assert.Greater(t, gc.API.MaxRequestDuration, gc.External.MyAnimeList.Timeout*time.Duration(gc.External.MyAnimeList.ProfileMaxRetries+2))
	assert.Equal(t, "https://myanimelist.net", gc.External.MyAnimeList.URL)
	assert.Equal(t, "https://api.myanimelist.net", gc.External.MyAnimeList.ApiURL)
	assert.False(t, gc.Redis.Enabled())
	assert.Equal(t, float64(30), gc.RateLimitOAuth.Events)
	assert.Equal(t, 5*time.Minute, gc.RateLimitOAuth.OverTime)
}

func TestGlobalValidation(t *testing.T) {
	cases := []struct {
		desc string
		env  map[string]string
	}{
		{
			desc: "short jwt secret",
			env:  map[string]string{"AUTH_JWT_SECRET": "short"},
		},
		{
			desc: "redis url with a foreign scheme",
			env:  map[string]string{"REDIS_URL": "http://localhost:6379"},
		},
		{
			desc: "flow state outliving the refresh token",
			env: map[string]string{
				"AUTH_SESSIONS_FLOW_STATE_TTL":    "2h",
				"AUTH_SESSIONS_REFRESH_TOKEN_TTL": "1h",
			},
		},
		{
			desc: "profile retries outlasting the request",
			env: map[string]string{
				"AUTH_API_MAX_REQUEST_DURATION":         "30s",
				"AUTH_EXTERNAL_MAL_TIMEOUT":             "10s",
				"AUTH_EXTERNAL_MAL_PROFILE_MAX_RETRIES": "3",
			},
		},
		{
			desc: "relative external url",
			env:  map[string]string{"API_EXTERNAL_URL": "localhost"},
		},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range c.env {
				t.Setenv(k, v)
			}
			_, err := LoadGlobal("")
			require.Error(t, err)
		})
	}
}

func TestProviderBudgetWithoutRequestTimeout(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTH_API_MAX_REQUEST_DURATION", "0s")
	t.Setenv("AUTH_EXTERNAL_MAL_PROFILE_MAX_RETRIES", "10")

	_, err := LoadGlobal("")
	require.NoError(t, err)
}

func TestValidateOAuth(t *testing.T) {
	o := OAuthProviderConfiguration{
		ClientID:            "client",
		Secret:              "secret",
		RedirectURI:         "http://localhost:8081/oauth/callback",
		CodeChallengeMethod: CodeChallengeMethodPlain,
	}
	require.NoError(t, o.ValidateOAuth())

	missing := o
	missing.Secret = ""
	require.EqualError(t, missing.ValidateOAuth(), "missing OAuth secret")

	unsupported := o
	unsupported.CodeChallengeMethod = "md5"
	require.Error(t, unsupported.ValidateOAuth())
}
