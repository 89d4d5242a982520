// Package github publishes review reports as GitHub pull request
// reviews using the go-github library.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/codewatchers/reviewd/internal/domain"
	"github.com/codewatchers/reviewd/internal/redaction"
)

// Publisher delivers review reports to GitHub pull requests.
type Publisher struct {
	gh          *gh.Client
	botUsername string
	redactor    *redaction.Engine
}

// NewPublisher creates a publisher with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewPublisher(token, botUsername string) *Publisher {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Publisher{
		gh:          client,
		botUsername: botUsername,
		redactor:    redaction.NewEngine(),
	}
}

// NewEnterprisePublisher creates a publisher with the same transport
// stack pointed at a GitHub Enterprise base URL.
func NewEnterprisePublisher(token, baseURL, botUsername string) (*Publisher, error) {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client, err := gh.NewClient(rateLimitClient).WithAuthToken(token).WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("configuring enterprise URLs: %w", err)
	}

	return &Publisher{
		gh:          client,
		botUsername: botUsername,
		redactor:    redaction.NewEngine(),
	}, nil
}

// NewPublisherWithHTTPClient creates a Publisher with a custom
// http.Client and base URL. This constructor is intended for testing,
// allowing injection of an httptest server.
func NewPublisherWithHTTPClient(httpClient *http.Client, baseURL, botUsername string) (*Publisher, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	client.BaseURL = u

	return &Publisher{
		gh:          client,
		botUsername: botUsername,
		redactor:    redaction.NewEngine(),
	}, nil
}

// Publish posts the report as a single pull request review with inline
// comments for each issue. Transient API failures are reported as
// retryable publish errors; client-side rejections are terminal.
func (p *Publisher) Publish(ctx context.Context, report domain.ReviewReport) error {
	owner, repo, err := splitRepo(report.Repository)
	if err != nil {
		return &domain.Error{Type: domain.ErrTypePublishFailure, Message: err.Error()}
	}

	// Issue text can quote diff content verbatim, so everything that
	// leaves the pipeline passes through the redactor first.
	comments := buildComments(report)
	for _, comment := range comments {
		comment.Body = gh.Ptr(p.redactor.Redact(comment.GetBody()))
	}

	review := &gh.PullRequestReviewRequest{
		CommitID: gh.Ptr(report.HeadSHA),
		Event:    gh.Ptr(reviewEvent(report)),
		Body:     gh.Ptr(p.redactor.Redact(renderSummary(report))),
		Comments: comments,
	}

	_, resp, err := p.gh.PullRequests.CreateReview(ctx, owner, repo, report.PRNumber, review)
	if err != nil {
		return mapPublishError(report, resp, err)
	}
	return nil
}

// reviewEvent requests changes when any critical issue survived
// filtering, and comments otherwise.
func reviewEvent(report domain.ReviewReport) string {
	for _, issue := range report.Issues {
		if issue.Severity == domain.SeverityCritical {
			return "REQUEST_CHANGES"
		}
	}
	return "COMMENT"
}

// buildComments converts issues into inline review comments anchored to
// post-change line numbers.
func buildComments(report domain.ReviewReport) []*gh.DraftReviewComment {
	comments := make([]*gh.DraftReviewComment, 0, len(report.Issues))
	for _, issue := range report.Issues {
		comment := &gh.DraftReviewComment{
			Path: gh.Ptr(issue.File),
			Body: gh.Ptr(renderComment(issue)),
			Line: gh.Ptr(issue.Range.End),
			Side: gh.Ptr("RIGHT"),
		}
		if issue.Range.Start < issue.Range.End {
			comment.StartLine = gh.Ptr(issue.Range.Start)
			comment.StartSide = gh.Ptr("RIGHT")
		}
		comments = append(comments, comment)
	}
	return comments
}

// mapPublishError classifies a failed CreateReview call. Server errors
// and rate limiting warrant a retry; validation and auth errors do not.
func mapPublishError(report domain.ReviewReport, resp *gh.Response, err error) error {
	message := fmt.Sprintf("posting review for %s#%d", report.Repository, report.PRNumber)
	if resp != nil {
		switch {
		case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
			return domain.NewPublishFailureError(message, err)
		case resp.StatusCode >= 400:
			return &domain.Error{Type: domain.ErrTypePublishFailure, Message: message, Cause: err}
		}
	}
	// Network-level failure without a response; assume transient.
	return domain.NewPublishFailureError(message, err)
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
