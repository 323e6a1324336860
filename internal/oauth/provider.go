// Package oauth exchanges provider authorization codes for a normalized
// external identity. Google and GitHub implement the same Provider interface
// on top of golang.org/x/oauth2.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/fromscratch/identity/internal/apperr"
	"github.com/fromscratch/identity/internal/config"
	"github.com/fromscratch/identity/internal/model"
)

var (
	ErrProviderNotConfigured = apperr.New(apperr.NotConfigured, "provider_not_configured", "sign-in with this provider is not configured")
	ErrExchangeFailed        = apperr.New(apperr.UpstreamFailure, "oauth_exchange_failed", "could not complete sign-in with the provider")
	ErrUnknownProvider       = apperr.New(apperr.NotFound, "unknown_provider", "unknown sign-in provider")
)

// Identity is the provider-agnostic result of a code exchange. Empty strings
// stand for values the provider did not return.
type Identity struct {
	Provider   model.Provider
	ProviderID string
	Email      string
	FirstName  string
	LastName   string
	AvatarURL  string
}

// Provider is one OAuth identity provider.
type Provider interface {
	Name() model.Provider
	AuthorizationURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (Identity, error)
}

// Option overrides provider endpoints, mostly for tests.
type Option func(*options)

type options struct {
	endpoint   *oauth2.Endpoint
	apiBase    string
	httpClient *http.Client
}

// WithEndpoint replaces the authorize and token URLs.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(o *options) { o.endpoint = &ep }
}

// WithAPIBase replaces the base URL of the profile API.
func WithAPIBase(base string) Option {
	return func(o *options) { o.apiBase = strings.TrimRight(base, "/") }
}

// WithHTTPClient sets the client used for token and profile calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o options) context(ctx context.Context) context.Context {
	if o.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
}

func newConfig(c config.OAuthClient, ep oauth2.Endpoint, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURI,
		Scopes:       scopes,
		Endpoint:     ep,
	}
}

func configured(c *oauth2.Config) bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != ""
}

// exchangeError tags a token endpoint failure with the upstream status.
func exchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return ErrExchangeFailed.WithUpstream(re.Response.StatusCode, err)
	}
	return ErrExchangeFailed.Wrap(err)
}

func getJSON(ctx context.Context, client *http.Client, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ErrExchangeFailed.Wrap(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := client.Do(req)
	if err != nil {
		return ErrExchangeFailed.Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrExchangeFailed.WithUpstream(resp.StatusCode, fmt.Errorf("GET %s", url))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ErrExchangeFailed.Wrap(fmt.Errorf("decode %s: %w", url, err))
	}
	return nil
}

// SplitName treats the first word as the first name and the rest as the
// last name.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// Registry resolves providers by name.
type Registry map[model.Provider]Provider

// NewRegistry builds the Google and GitHub providers from cfg. Providers
// without credentials are still registered and fail with
// ErrProviderNotConfigured when used.
func NewRegistry(cfg config.Config, opts ...Option) Registry {
	return Registry{
		model.ProviderGoogle: NewGoogle(cfg.Google, opts...),
		model.ProviderGitHub: NewGitHub(cfg.GitHub, opts...),
	}
}

// Get returns the provider registered under name.
func (r Registry) Get(name string) (Provider, error) {
	p, ok := r[model.Provider(name)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}
