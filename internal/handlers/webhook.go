// Package handlers holds the HTTP boundary: platform webhooks, the OAuth
// install flows, and the websocket event stream.
package handlers

import (
	"net/http"
	"strconv"

	gh "github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"
	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/ingest"
)

// GitHubWebhookHandler receives GitHub App webhook deliveries, verifies their
// signature, and feeds the interesting ones into the dispatcher.
type GitHubWebhookHandler struct {
	secret     []byte
	dispatcher *ingest.Dispatcher
	log        zerolog.Logger
}

// NewGitHubWebhookHandler creates a webhook handler. secret is the GitHub App
// webhook secret used for HMAC signature validation.
func NewGitHubWebhookHandler(secret string, dispatcher *ingest.Dispatcher, logger zerolog.Logger) *GitHubWebhookHandler {
	return &GitHubWebhookHandler{
		secret:     []byte(secret),
		dispatcher: dispatcher,
		log:        logger.With().Str("component", "github-webhook").Logger(),
	}
}

// HandleWebhook processes one delivery. Signature failures are rejected with
// 401; everything else is acknowledged with 200, because GitHub disables
// webhooks that see repeated delivery errors. Unrecognized events hit the
// catch-all log and are dropped.
func (h *GitHubWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := gh.ValidatePayload(r, h.secret)
	if err != nil {
		h.log.Warn().Err(err).Msg("webhook signature validation failed")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	eventType := gh.WebHookType(r)
	event, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		h.log.Warn().Err(err).Str("event", eventType).Msg("failed to parse webhook payload")
		w.WriteHeader(http.StatusOK)
		return
	}

	switch e := event.(type) {
	case *gh.IssuesEvent:
		h.handleIssuesEvent(r, e)
	case *gh.PullRequestEvent:
		h.handlePullRequestEvent(r, e)
	default:
		h.log.Debug().Str("event", eventType).Msg("ignoring unhandled webhook event")
	}

	w.WriteHeader(http.StatusOK)
}

func (h *GitHubWebhookHandler) handleIssuesEvent(r *http.Request, e *gh.IssuesEvent) {
	if e.GetAction() != "closed" {
		h.log.Debug().Str("action", e.GetAction()).Msg("ignoring issues action")
		return
	}
	h.dispatcher.Dispatch(r.Context(), ingest.Event{
		Platform: database.PlatformGitHub,
		Type:     ingest.EventIssueClosed,
		GitHub: &ingest.GitHubEvent{
			Action:  e.GetAction(),
			IssueID: strconv.FormatInt(e.GetIssue().GetID(), 10),
			Number:  e.GetIssue().GetNumber(),
			Title:   e.GetIssue().GetTitle(),
		},
	})
}

func (h *GitHubWebhookHandler) handlePullRequestEvent(r *http.Request, e *gh.PullRequestEvent) {
	if e.GetAction() != "closed" {
		h.log.Debug().Str("action", e.GetAction()).Msg("ignoring pull_request action")
		return
	}
	h.dispatcher.Dispatch(r.Context(), ingest.Event{
		Platform: database.PlatformGitHub,
		Type:     ingest.EventPullRequestClosed,
		GitHub: &ingest.GitHubEvent{
			Action: e.GetAction(),
			PRID:   strconv.FormatInt(e.GetPullRequest().GetID(), 10),
			Number: e.GetPullRequest().GetNumber(),
			Title:  e.GetPullRequest().GetTitle(),
			Merged: e.GetPullRequest().GetMerged(),
		},
	})
}
