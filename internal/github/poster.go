package github

import (
	"context"
	"fmt"
	"log/slog"

	gh "github.com/google/go-github/v57/github"
)

// Poster submits review comments to a pull request
type Poster struct {
	client *gh.Client
	logger *slog.Logger
}

// NewPoster builds a poster authenticated with a personal access token
func NewPoster(token string) *Poster {
	return &Poster{
		client: gh.NewClient(nil).WithAuthToken(token),
		logger: slog.Default().With("component", "github"),
	}
}

// PostReview submits one pull-request review carrying all inline comments.
// The summary body mentions skipped issues so nothing disappears silently.
func (p *Poster) PostReview(ctx context.Context, owner, repo string, number int, comments []ReviewComment, skipped []SkippedIssue) error {
	draft := make([]*gh.DraftReviewComment, 0, len(comments))
	for _, c := range comments {
		draft = append(draft, &gh.DraftReviewComment{
			Path: gh.String(c.Path),
			Line: gh.Int(c.Line),
			Side: gh.String("RIGHT"),
			Body: gh.String(c.Body),
		})
	}

	body := fmt.Sprintf("Automated review: %d comment(s).", len(comments))
	if len(skipped) > 0 {
		body += fmt.Sprintf(" %d issue(s) could not be anchored to the diff; see the full report.", len(skipped))
	}

	review := &gh.PullRequestReviewRequest{
		Body:     gh.String(body),
		Event:    gh.String("COMMENT"),
		Comments: draft,
	}
	_, _, err := p.client.PullRequests.CreateReview(ctx, owner, repo, number, review)
	if err != nil {
		return fmt.Errorf("failed to post review to %s/%s#%d: %w", owner, repo, number, err)
	}
	p.logger.Info("review posted", "repo", owner+"/"+repo, "pr", number, "comments", len(comments), "skipped", len(skipped))
	return nil
}
