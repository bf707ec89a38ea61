package conf

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultAccessTokenTTL     time.Duration = 60 * time.Minute
	defaultRefreshTokenTTL    time.Duration = 30 * 24 * time.Hour
	defaultFlowStateTTL       time.Duration = 10 * time.Minute
	defaultAccessCookieMaxAge time.Duration = 15 * time.Minute
	defaultProviderTimeout    time.Duration = 10 * time.Second
)

// Code challenge methods accepted by the authorization endpoint.
const (
	CodeChallengeMethodPlain = "plain"
	CodeChallengeMethodS256  = "s256"
)

// OAuthProviderConfiguration holds all config related to the external
// identity provider.
type OAuthProviderConfiguration struct {
	ClientID    string `json:"client_id" split_words:"true"`
	Secret      string `json:"secret"`
	RedirectURI string `json:"redirect_uri" split_words:"true"`
	// URL is the base of the authorization server, ApiURL the base of the
	// resource server that serves the user profile.
	URL    string `json:"url"`
	ApiURL string `json:"api_url" split_words:"true"`

	CodeChallengeMethod string        `json:"code_challenge_method" split_words:"true" default:"plain"`
	Timeout             time.Duration `json:"timeout" default:"10s"`
	ProfileMaxRetries   uint          `json:"profile_max_retries" split_words:"true" default:"3"`
}

// ValidateOAuth reports whether the provider can be used to start a login.
func (o *OAuthProviderConfiguration) ValidateOAuth() error {
	if o.ClientID == "" {
		return errors.New("missing OAuth client ID")
	}
	if o.Secret == "" {
		return errors.New("missing OAuth secret")
	}
	if o.RedirectURI == "" {
		return errors.New("missing redirect URI")
	}
	switch o.CodeChallengeMethod {
	case CodeChallengeMethodPlain, CodeChallengeMethodS256:
	default:
		return fmt.Errorf("unsupported code challenge method %q", o.CodeChallengeMethod)
	}
	return nil
}

type ProviderConfiguration struct {
	MyAnimeList OAuthProviderConfiguration `json:"mal" envconfig:"MAL"`
}

// DBConfiguration holds all the database related configuration.
type DBConfiguration struct {
	Driver string `json:"driver" default:"postgres"`
	URL    string `json:"url" envconfig:"DATABASE_URL" required:"true"`
	// MaxPoolSize defaults to 0 (unlimited).
	MaxPoolSize     int           `json:"max_pool_size" split_words:"true"`
	MaxIdlePoolSize int           `json:"max_idle_pool_size" split_words:"true"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" split_words:"true"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time,omitempty" split_words:"true"`
	MigrationsPath  string        `json:"migrations_path" split_words:"true" default:"./migrations"`
	CleanupEnabled  bool          `json:"cleanup_enabled" split_words:"true" default:"true"`
	CleanupInterval time.Duration `json:"cleanup_interval" split_words:"true" default:"1m"`
}

func (c *DBConfiguration) Validate() error {
	if c.CleanupEnabled && c.CleanupInterval <= 0 {
		return fmt.Errorf("conf: db cleanup interval must be positive, was %v", c.CleanupInterval)
	}
	return nil
}

// RedisConfiguration selects redis as the backend for pending
// authorizations. Left empty, the SQL database is used.
type RedisConfiguration struct {
	URL       string `json:"url" envconfig:"REDIS_URL"`
	KeyPrefix string `json:"key_prefix" split_words:"true" default:"auth:pending:"`
}

func (c *RedisConfiguration) Enabled() bool {
	return c.URL != ""
}

func (c *RedisConfiguration) Validate() error {
	if c.URL == "" {
		return nil
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return fmt.Errorf("conf: redis url must use the redis or rediss scheme, was %q", u.Scheme)
	}
	return nil
}

// JWTConfiguration holds all the JWT related configuration.
type JWTConfiguration struct {
	Secret string        `json:"secret" required:"true"`
	Exp    time.Duration `json:"exp"`
	Issuer string        `json:"issuer" default:"anime-tinder"`
}

func (c *JWTConfiguration) Validate() error {
	if len(c.Secret) < 16 {
		return errors.New("conf: jwt secret must be at least 16 characters")
	}
	return nil
}

type SessionsConfiguration struct {
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl" split_words:"true"`
	FlowStateTTL    time.Duration `json:"flow_state_ttl" split_words:"true"`
	// RefreshTokenRetention is how long a dead refresh token is kept for
	// audit before the cleanup worker purges it.
	RefreshTokenRetention time.Duration `json:"refresh_token_retention" split_words:"true" default:"720h"`
}

func (c *SessionsConfiguration) Validate() error {
	if c.RefreshTokenRetention < 0 {
		return fmt.Errorf("conf: refresh token retention must not be negative, was %v", c.RefreshTokenRetention)
	}
	return nil
}

type CookieConfiguration struct {
	Domain              string        `json:"domain"`
	AccessTokenMaxAge   time.Duration `json:"access_token_max_age" split_words:"true"`
	AccessTokenHTTPOnly bool          `json:"access_token_http_only" envconfig:"ACCESS_TOKEN_HTTP_ONLY" default:"true"`
	// Insecure drops the Secure attribute, for local development over http.
	Insecure bool `json:"insecure"`
}

type APIConfiguration struct {
	Host               string
	Port               string        `envconfig:"PORT" default:"8081"`
	RequestIDHeader    string        `envconfig:"REQUEST_ID_HEADER"`
	ExternalURL        string        `json:"external_url" envconfig:"API_EXTERNAL_URL" required:"true"`
	MaxRequestDuration time.Duration `json:"max_request_duration" split_words:"true" default:"60s"`
}

func (a *APIConfiguration) Validate() error {
	_, err := url.ParseRequestURI(a.ExternalURL)
	if err != nil {
		return err
	}

	return nil
}

type CORSConfiguration struct {
	AllowedOrigins []string `json:"allowed_origins" split_words:"true"`
}

type LoggingConfig struct {
	Level  string            `mapstructure:"log_level" json:"log_level"`
	File   string            `mapstructure:"log_file" json:"log_file"`
	SQL    string            `mapstructure:"sql" json:"sql"`
	Fields map[string]string `mapstructure:"fields" json:"fields"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// GlobalConfiguration holds all the configuration that applies to the
// auth service.
type GlobalConfiguration struct {
	API      APIConfiguration
	DB       DBConfiguration
	Redis    RedisConfiguration
	External ProviderConfiguration
	Logging  LoggingConfig `envconfig:"LOG"`
	Metrics  MetricsConfig
	JWT      JWTConfiguration      `json:"jwt"`
	Sessions SessionsConfiguration `json:"sessions"`
	Cookie   CookieConfiguration   `json:"cookies"`
	CORS     CORSConfiguration     `json:"cors"`

	SiteURL  string `json:"site_url" split_words:"true" required:"true"`
	HomePath string `json:"home_path" split_words:"true" default:"/home"`

	RateLimitHeader string `json:"rate_limit_header" split_words:"true"`
	RateLimitOAuth  Rate   `json:"rate_limit_oauth" split_words:"true" default:"30/5m"`
}

func loadEnvironment(filename string) error {
	var err error
	if filename != "" {
		err = godotenv.Overload(filename)
	} else {
		err = godotenv.Load()
		// handle if .env file does not exist, this is OK
		if os.IsNotExist(err) {
			return nil
		}
	}
	return err
}

// LoadGlobal loads configuration from file and environment variables.
func LoadGlobal(filename string) (*GlobalConfiguration, error) {
	if err := loadEnvironment(filename); err != nil {
		return nil, err
	}

	config := new(GlobalConfiguration)
	if err := envconfig.Process("auth", config); err != nil {
		return nil, err
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyDefaults sets defaults for a GlobalConfiguration
func (config *GlobalConfiguration) ApplyDefaults() error {
	if config.JWT.Exp == 0 {
		config.JWT.Exp = defaultAccessTokenTTL
	}

	if config.Sessions.RefreshTokenTTL == 0 {
		config.Sessions.RefreshTokenTTL = defaultRefreshTokenTTL
	}

	if config.Sessions.FlowStateTTL == 0 {
		config.Sessions.FlowStateTTL = defaultFlowStateTTL
	}

	if config.Cookie.AccessTokenMaxAge == 0 {
		config.Cookie.AccessTokenMaxAge = defaultAccessCookieMaxAge
	}

	mal := &config.External.MyAnimeList
	if mal.URL == "" {
		mal.URL = "https://myanimelist.net"
	}
	if mal.ApiURL == "" {
		mal.ApiURL = "https://api.myanimelist.net"
	}
	if mal.Timeout == 0 {
		mal.Timeout = defaultProviderTimeout
	}
	mal.CodeChallengeMethod = strings.ToLower(mal.CodeChallengeMethod)
	if mal.CodeChallengeMethod == "" {
		mal.CodeChallengeMethod = CodeChallengeMethodPlain
	}

	config.SiteURL = strings.TrimSuffix(config.SiteURL, "/")
	if !strings.HasPrefix(config.HomePath, "/") {
		config.HomePath = "/" + config.HomePath
	}

	if len(config.CORS.AllowedOrigins) == 0 && config.SiteURL != "" {
		config.CORS.AllowedOrigins = []string{config.SiteURL}
	}

	return nil
}

// Validate validates all of configuration.
func (c *GlobalConfiguration) Validate() error {
	validatables := []interface {
		Validate() error
	}{
		&c.API,
		&c.DB,
		&c.Redis,
		&c.JWT,
		&c.Sessions,
	}

	for _, validatable := range validatables {
		if err := validatable.Validate(); err != nil {
			return err
		}
	}

	if _, err := url.ParseRequestURI(c.SiteURL); err != nil {
		return fmt.Errorf("conf: invalid site url: %w", err)
	}

	if err := c.validateProviderBudget(); err != nil {
		return err
	}

	if c.Sessions.FlowStateTTL >= c.Sessions.RefreshTokenTTL {
		return errors.New("conf: flow state ttl must be shorter than the refresh token ttl")
	}

	return nil
}

// validateProviderBudget checks that the code exchange plus every profile
// attempt fits inside a request.
func (c *GlobalConfiguration) validateProviderBudget() error {
	if c.API.MaxRequestDuration <= 0 {
		return nil
	}

	mal := c.External.MyAnimeList
	worstCase := mal.Timeout * time.Duration(mal.ProfileMaxRetries+2)
	if c.API.MaxRequestDuration <= worstCase {
		return fmt.Errorf("conf: max request duration %s must exceed the provider timeout times (profile retries + 2) = %s", c.API.MaxRequestDuration, worstCase)
	}
	return nil
}

// HomeURL is where a browser lands after a successful login.
func (c *GlobalConfiguration) HomeURL() string {
	return c.SiteURL + c.HomePath
}
