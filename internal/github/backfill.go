package github

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"
	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/status"
	"gorm.io/gorm"
)

// BackfillRepoIssues imports a repository's issues as threads. Already
// imported issues are skipped, so re-running a partial backfill is safe.
// Progress is persisted into the integration config after every page so the
// UI can poll `backfill.processed` / `backfill.total`.
func BackfillRepoIssues(ctx context.Context, db *gorm.DB, client *AppClient, integration *database.Integration, installationID int64, owner, repo string, logger zerolog.Logger) error {
	log := logger.With().
		Str("component", "github-backfill").
		Str("repo", owner+"/"+repo).
		Logger()

	gh, err := client.InstallationClient(installationID)
	if err != nil {
		return err
	}

	opts := &github.IssueListByRepoOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	processed := 0
	total := 0
	for {
		issues, resp, err := gh.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return fmt.Errorf("list issues for %s/%s: %w", owner, repo, err)
		}
		if total == 0 && resp.LastPage > 0 {
			total = resp.LastPage * opts.PerPage
		}

		for _, issue := range issues {
			// The issues listing includes pull requests; those are linked
			// through externalPrId by the webhook path, not imported here.
			if issue.IsPullRequest() {
				continue
			}
			if err := importIssue(db, integration, issue); err != nil {
				log.Warn().Err(err).Int("number", issue.GetNumber()).Msg("failed to import issue")
				continue
			}
			processed++
		}

		if total < processed {
			total = processed
		}
		integration.Config["backfill"] = map[string]interface{}{
			"processed": processed,
			"total":     total,
		}
		if err := database.SaveIntegration(db, integration); err != nil {
			return err
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	// Final progress: the page-count estimate overshoots when pages contain
	// pull requests.
	integration.Config["backfill"] = map[string]interface{}{
		"processed": processed,
		"total":     processed,
	}
	if err := database.SaveIntegration(db, integration); err != nil {
		return err
	}

	log.Info().Int("imported", processed).Msg("backfill complete")
	return nil
}

func importIssue(db *gorm.DB, integration *database.Integration, issue *github.Issue) error {
	issueID := strconv.FormatInt(issue.GetID(), 10)

	existing, err := database.ThreadsByIssueID(db, issueID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	st := status.Open
	if issue.GetState() == "closed" {
		st = status.Resolved
	}

	origin := database.PlatformGitHub
	thread := database.Thread{
		OrganizationID:  integration.OrganizationID,
		Name:            issue.GetTitle(),
		Status:          st,
		ExternalID:      &issueID,
		ExternalOrigin:  &origin,
		ExternalIssueID: &issueID,
		ExternalMetadata: database.JSONB{
			"repo":   issue.GetRepositoryURL(),
			"number": issue.GetNumber(),
		},
	}
	return database.CreateThread(db, &thread)
}
