package oauth

import (
	"context"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/fromscratch/identity/internal/config"
	"github.com/fromscratch/identity/internal/model"
)

const githubAPIBase = "https://api.github.com"

// GitHub signs users in with GitHub accounts.
type GitHub struct {
	cfg     *oauth2.Config
	apiBase string
	opts    options
}

func NewGitHub(c config.OAuthClient, opts ...Option) *GitHub {
	o := buildOptions(opts)
	ep := github.Endpoint
	if o.endpoint != nil {
		ep = *o.endpoint
	}
	base := githubAPIBase
	if o.apiBase != "" {
		base = o.apiBase
	}
	return &GitHub{
		cfg:     newConfig(c, ep, []string{"read:user", "user:email"}),
		apiBase: base,
		opts:    o,
	}
}

func (g *GitHub) Name() model.Provider { return model.ProviderGitHub }

func (g *GitHub) AuthorizationURL(state string) (string, error) {
	if g.cfg.ClientID == "" || g.cfg.RedirectURL == "" {
		return "", ErrProviderNotConfigured
	}
	return g.cfg.AuthCodeURL(state), nil
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

var githubHeaders = http.Header{
	"Accept":     {"application/vnd.github+json"},
	"User-Agent": {"fromscratch-identity"},
}

func (g *GitHub) Exchange(ctx context.Context, code string) (Identity, error) {
	if !configured(g.cfg) {
		return Identity{}, ErrProviderNotConfigured
	}
	ctx = g.opts.context(ctx)

	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return Identity{}, exchangeError(err)
	}
	client := g.cfg.Client(ctx, tok)

	var u githubUser
	if err := getJSON(ctx, client, g.apiBase+"/user", githubHeaders, &u); err != nil {
		return Identity{}, err
	}

	email := u.Email
	if email == "" {
		// Private emails are only listed on /user/emails. A failure here
		// leaves the identity without an email.
		var list []githubEmail
		if err := getJSON(ctx, client, g.apiBase+"/user/emails", githubHeaders, &list); err == nil {
			email = primaryEmail(list)
		}
	}

	id := ""
	if u.ID != 0 {
		id = strconv.FormatInt(u.ID, 10)
	}
	first, last := SplitName(u.Name)
	return Identity{
		Provider:   model.ProviderGitHub,
		ProviderID: id,
		Email:      email,
		FirstName:  first,
		LastName:   last,
		AvatarURL:  u.AvatarURL,
	}, nil
}

func primaryEmail(list []githubEmail) string {
	for _, e := range list {
		if e.Primary {
			return e.Email
		}
	}
	if len(list) > 0 {
		return list[0].Email
	}
	return ""
}
