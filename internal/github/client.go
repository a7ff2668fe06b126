// Package github wraps the GitHub App REST surface: per-installation
// clients, installation repository listing, and the issue-import backfill.
// There are no outbound issue writes; status changes arriving from GitHub are
// self-marked so the relay never echoes anything back to it.
package github

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v66/github"
)

// AppClient builds per-installation clients for a single GitHub App.
type AppClient struct {
	appID      int64
	privateKey []byte
	transport  http.RoundTripper
}

// NewAppClient creates a client factory for the app credentials.
func NewAppClient(appID int64, privateKeyPEM []byte) *AppClient {
	return &AppClient{
		appID:      appID,
		privateKey: privateKeyPEM,
		transport:  http.DefaultTransport,
	}
}

// InstallationClient returns a REST client authenticated as the given
// installation.
func (c *AppClient) InstallationClient(installationID int64) (*github.Client, error) {
	itr, err := ghinstallation.New(c.transport, c.appID, installationID, c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("build installation transport: %w", err)
	}
	return github.NewClient(&http.Client{Transport: itr}), nil
}

// ListInstallationRepos lists every repository the installation grants access
// to, following pagination.
func (c *AppClient) ListInstallationRepos(ctx context.Context, installationID int64) ([]*github.Repository, error) {
	client, err := c.InstallationClient(installationID)
	if err != nil {
		return nil, err
	}

	var repos []*github.Repository
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := client.Apps.ListRepos(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("list installation repos: %w", err)
		}
		repos = append(repos, page.Repositories...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return repos, nil
}
