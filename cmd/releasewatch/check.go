package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	githubadapter "github.com/ericfisherdev/releasewatch/internal/adapter/driven/github"
	"github.com/ericfisherdev/releasewatch/internal/config"
	"github.com/ericfisherdev/releasewatch/internal/domain/model"
	"github.com/ericfisherdev/releasewatch/internal/domain/port/driven"
)

// errNoRelease is returned by check when GitHub has no release or tag data.
var errNoRelease = errors.New("no release information available")

func runCheck(ctx context.Context, out io.Writer, cfg *config.Config, url string) error {
	return checkRelease(ctx, out, githubadapter.NewClient(cfg.GitHubToken, cfg.FetchTimeout), url)
}

// checkRelease prints the latest release of one repository as "tag\turl".
func checkRelease(ctx context.Context, out io.Writer, source driven.ReleaseSource, url string) error {
	ref, err := model.ParseRepoURL(url)
	if err != nil {
		return usageError("%q is not https://github.com/{owner}/{project}", url)
	}

	release, err := source.LatestRelease(ctx, ref.Owner, ref.Project)
	if err != nil {
		return err
	}
	if release == nil {
		return fmt.Errorf("%s: %w", ref.ShortName(), errNoRelease)
	}

	_, err = fmt.Fprintf(out, "%s\t%s\n", release.Tag, release.URL)
	return err
}
