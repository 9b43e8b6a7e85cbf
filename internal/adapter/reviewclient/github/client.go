// Package github implements domain.ReviewClient (spec.md's opaque
// review-service port, made concrete per SPEC_FULL.md) against GitHub
// pull requests via google/go-github.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	gogithub "github.com/google/go-github/v68/github"

	"github.com/arcyd/arcyd/internal/domain"
)

// Client adapts a *gogithub.Client to domain.ReviewClient. One Client
// is bound to a single owner/repo: the daemon wires one Client per RD
// (spec.md §3's repository descriptor), since GitHub's pull-request API
// is itself owner/repo-scoped and a review id is only ever meaningful
// within the repo that issued it.
type Client struct {
	gh    *gogithub.Client
	owner string
	repo  string
}

// New builds a Client authenticated with token, bound to owner/repo. An
// empty token builds an unauthenticated client, useful only against a
// public read path in tests.
func New(token, owner, repo string, httpClient *http.Client) *Client {
	gh := gogithub.NewClient(httpClient)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	return &Client{gh: gh, owner: owner, repo: repo}
}

// WithBaseURL points the client at an alternate API root (a GitHub
// Enterprise instance, or a test server). baseURL must end in "/".
func (c *Client) WithBaseURL(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("reviewclient/github: parse base url %s: %w", baseURL, err)
	}
	c.gh.BaseURL = u
	return nil
}

// Create opens a pull request from req.Branch onto req.Base and
// requests the given reviewers. The diff itself is never attached
// directly: C6 has already pushed req.Branch to the remote, so GitHub
// computes the diff from the branch comparison.
func (c *Client) Create(ctx context.Context, req domain.ReviewRequest) (int, error) {
	pr, _, err := c.gh.PullRequests.Create(ctx, c.owner, c.repo, &gogithub.NewPullRequest{
		Title: gogithub.Ptr(req.Title),
		Head:  gogithub.Ptr(req.Branch),
		Base:  gogithub.Ptr(req.Base),
		Body:  gogithub.Ptr(req.TestPlan),
	})
	if err != nil {
		return 0, fmt.Errorf("reviewclient/github: create pull request: %w", err)
	}

	if len(req.Reviewers) > 0 {
		if _, _, err := c.gh.PullRequests.RequestReviewers(ctx, c.owner, c.repo, pr.GetNumber(), gogithub.ReviewersRequest{
			Reviewers: req.Reviewers,
		}); err != nil {
			return 0, fmt.Errorf("reviewclient/github: request reviewers: %w", err)
		}
	}

	return pr.GetNumber(), nil
}

// UpdateDiff re-requests review on an already-open pull request. The new
// diff content itself reaches GitHub via C6's push to the branch that
// backs this pull request; this call just nudges reviewers that there's
// something new to look at.
func (c *Client) UpdateDiff(ctx context.Context, id int, _ string) error {
	return c.Comment(ctx, id, "Updated diff pushed; please take another look.")
}

// Comment posts a plain issue comment on the pull request.
func (c *Client) Comment(ctx context.Context, id int, text string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, id, &gogithub.IssueComment{
		Body: gogithub.Ptr(text),
	})
	if err != nil {
		return fmt.Errorf("reviewclient/github: comment on #%d: %w", id, err)
	}
	return nil
}

// Close marks the pull request closed, used when C7's land() operation
// has already squash-merged the change itself onto the base branch.
func (c *Client) Close(ctx context.Context, id int) error {
	_, _, err := c.gh.PullRequests.Edit(ctx, c.owner, c.repo, id, &gogithub.PullRequest{
		State: gogithub.Ptr("closed"),
	})
	if err != nil {
		return fmt.Errorf("reviewclient/github: close #%d: %w", id, err)
	}
	return nil
}

// Abandon closes the pull request with an explanatory comment, used
// when the review branch disappears out from under an open review.
func (c *Client) Abandon(ctx context.Context, id int, comment string) error {
	if err := c.Comment(ctx, id, comment); err != nil {
		return err
	}
	return c.Close(ctx, id)
}

// QueryStatus maps a single pull request's GitHub state onto
// domain.ReviewStatus.
func (c *Client) QueryStatus(ctx context.Context, id int) (domain.ReviewStatus, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, c.owner, c.repo, id)
	if err != nil {
		return "", fmt.Errorf("reviewclient/github: get #%d: %w", id, err)
	}
	return mapStatus(pr), nil
}

// QueryStatuses batch-queries by issuing one Get per id; go-github has
// no bulk pull-request-by-number endpoint, so this is the Go
// counterpart of "one call per id, gathered into a map" rather than a
// true single round-trip.
func (c *Client) QueryStatuses(ctx context.Context, ids []int) (map[int]domain.ReviewStatus, error) {
	out := make(map[int]domain.ReviewStatus, len(ids))
	for _, id := range ids {
		status, err := c.QueryStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = status
	}
	return out, nil
}

func mapStatus(pr *gogithub.PullRequest) domain.ReviewStatus {
	if pr.GetState() == "closed" {
		if pr.GetMerged() {
			return domain.ReviewClosed
		}
		return domain.ReviewAbandoned
	}

	switch pr.GetMergeableState() {
	case "dirty", "behind":
		return domain.ReviewNeedsRevision
	case "clean":
		return domain.ReviewAccepted
	}
	return domain.ReviewNeedsReview
}
