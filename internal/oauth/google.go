package oauth

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/fromscratch/identity/internal/config"
	"github.com/fromscratch/identity/internal/model"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// Google signs users in with Google accounts.
type Google struct {
	cfg         *oauth2.Config
	userInfoURL string
	opts        options
}

func NewGoogle(c config.OAuthClient, opts ...Option) *Google {
	o := buildOptions(opts)
	ep := google.Endpoint
	if o.endpoint != nil {
		ep = *o.endpoint
	}
	userInfo := googleUserInfoURL
	if o.apiBase != "" {
		userInfo = o.apiBase + "/v1/userinfo"
	}
	return &Google{
		cfg:         newConfig(c, ep, []string{"openid", "email", "profile"}),
		userInfoURL: userInfo,
		opts:        o,
	}
}

func (g *Google) Name() model.Provider { return model.ProviderGoogle }

func (g *Google) AuthorizationURL(state string) (string, error) {
	if g.cfg.ClientID == "" || g.cfg.RedirectURL == "" {
		return "", ErrProviderNotConfigured
	}
	return g.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")), nil
}

// googleUserInfo is the OpenID Connect userinfo response.
type googleUserInfo struct {
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
}

func (g *Google) Exchange(ctx context.Context, code string) (Identity, error) {
	if !configured(g.cfg) {
		return Identity{}, ErrProviderNotConfigured
	}
	ctx = g.opts.context(ctx)

	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return Identity{}, exchangeError(err)
	}

	var info googleUserInfo
	if err := getJSON(ctx, g.cfg.Client(ctx, tok), g.userInfoURL, nil, &info); err != nil {
		return Identity{}, err
	}

	first, last := info.GivenName, info.FamilyName
	if first == "" && last == "" {
		first, last = SplitName(info.Name)
	}
	return Identity{
		Provider:   model.ProviderGoogle,
		ProviderID: info.Sub,
		Email:      info.Email,
		FirstName:  first,
		LastName:   last,
		AvatarURL:  info.Picture,
	}, nil
}
