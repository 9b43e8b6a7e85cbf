// Package github backs internal/identity's BatchResolver and
// EmailResolver (spec.md §4.5, C5, made concrete per SPEC_FULL.md) with
// GitHub user lookups via google/go-github, since usernames in this
// system are GitHub logins when the reviewclient/github adapter is in
// use.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	gogithub "github.com/google/go-github/v68/github"
)

// Client resolves GitHub usernames and emails to (username, id) pairs.
type Client struct {
	gh *gogithub.Client
}

// New builds a Client authenticated with token.
func New(token string, httpClient *http.Client) *Client {
	gh := gogithub.NewClient(httpClient)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	return &Client{gh: gh}
}

// WithBaseURL points the client at an alternate API root. baseURL must
// end in "/".
func (c *Client) WithBaseURL(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("identity/github: parse base url %s: %w", baseURL, err)
	}
	c.gh.BaseURL = u
	return nil
}

// ResolveBatch satisfies identity.BatchResolver: each username is
// looked up individually (GitHub's Users API has no bulk-by-login
// endpoint), with a 404 treated as "unknown" rather than a batch
// failure.
func (c *Client) ResolveBatch(ctx context.Context, usernames []string) (map[string]int, []string, error) {
	resolved := make(map[string]int, len(usernames))
	var unknown []string

	for _, name := range usernames {
		user, resp, err := c.gh.Users.Get(ctx, name)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				unknown = append(unknown, name)
				continue
			}
			return nil, nil, fmt.Errorf("identity/github: get user %s: %w", name, err)
		}
		resolved[name] = int(user.GetID())
	}

	return resolved, unknown, nil
}

// ResolveEmail satisfies identity.EmailResolver via GitHub's user
// search, matching on a verified email address. An empty username with
// a nil error means no match — identity.Cache.Email turns that into
// domain.UnknownEmailError.
func (c *Client) ResolveEmail(ctx context.Context, email string) (string, int, error) {
	query := fmt.Sprintf("%s in:email", email)
	result, _, err := c.gh.Search.Users(ctx, query, nil)
	if err != nil {
		return "", 0, fmt.Errorf("identity/github: search email %s: %w", email, err)
	}
	if result.GetTotal() == 0 || len(result.Users) == 0 {
		return "", 0, nil
	}

	user := result.Users[0]
	return user.GetLogin(), int(user.GetID()), nil
}
