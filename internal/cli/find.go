package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/dependents/pkg/discovery"
	"github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/integrations/github"
)

type findFlags struct {
	packages []string
	selectUI bool
	page     int
	perPage  int
	asJSON   bool
}

// findCommand creates the find command.
func (c *CLI) findCommand() *cobra.Command {
	flags := &findFlags{}

	cmd := &cobra.Command{
		Use:   "find <owner/repo | url>",
		Short: "Find repositories that depend on a repository's packages",
		Long: `Enumerate the repository's npm packages and search GitHub for repositories
whose package.json references them. Results are sorted by stars.

Runs stop early when the API budget is exhausted; the partial results are
printed together with the time the budget resets.

Examples:
  dependents find acme/widgets
  dependents find acme/widgets --package widgets-core --per-page 50
  dependents find acme/widgets --select
  dependents find acme/widgets --page 2 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runFind(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringArrayVarP(&flags.packages, "package", "p", nil, "only search dependents of this package (repeatable)")
	cmd.Flags().BoolVar(&flags.selectUI, "select", false, "choose packages interactively")
	cmd.Flags().IntVar(&flags.page, "page", 1, "result page (1-based)")
	cmd.Flags().IntVar(&flags.perPage, "per-page", 0, "results per page, at most 100 (default from config)")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "print the result as JSON")

	return cmd
}

func (c *CLI) runFind(ctx context.Context, ref string, flags *findFlags) error {
	owner, repo, err := github.ParseRepoRef(ref)
	if err != nil {
		return err
	}
	for _, p := range flags.packages {
		if err := errors.ValidateNpmPackageName(p); err != nil {
			return err
		}
	}
	if err := validatePaging(flags.page, flags.perPage); err != nil {
		return err
	}
	eng, _, err := c.newEngine(ctx)
	if err != nil {
		return err
	}

	q := discovery.Query{
		Owner:    owner,
		Repo:     repo,
		Packages: flags.packages,
		Page:     flags.page,
		PageSize: flags.perPage,
	}

	if flags.selectUI {
		selected, err := c.selectPackages(ctx, eng, owner, repo)
		if err != nil {
			return err
		}
		if len(selected) == 0 {
			printDetail("No packages selected")
			return nil
		}
		q.Packages = selected
	}

	prog := newProgress(c.Logger)
	spinner := newSpinner(ctx, fmt.Sprintf("Searching dependents of %s/%s...", owner, repo))
	spinner.Start()

	ch := make(chan discovery.BatchProgress)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range ch {
			if !p.Done {
				spinner.Update(fmt.Sprintf("Searched %d/%d packages, %d dependents so far...", p.ProcessedCount, p.TotalCount, len(p.Data)))
			}
		}
	}()
	res := eng.FindDependents(ctx, q, ch)
	<-done
	spinner.Stop()
	prog.done(fmt.Sprintf("Found %d dependents", res.TotalFound))

	if flags.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
		return exitError(res)
	}

	printResult(res, time.Now())
	if res.HasNextPage {
		printNextStep("Next page", fmt.Sprintf("%s find %s/%s --page %d", appName, owner, repo, res.Page+1))
	}
	return exitError(res)
}

func (c *CLI) selectPackages(ctx context.Context, eng *engine, owner, repo string) ([]string, error) {
	spinner := newSpinner(ctx, fmt.Sprintf("Listing packages of %s/%s...", owner, repo))
	spinner.Start()
	pkgs, err := eng.DiscoverPackages(ctx, owner, repo)
	spinner.Stop()
	if err != nil {
		printError("%s", errors.UserMessage(err))
		return nil, err
	}
	if len(pkgs) == 0 {
		printWarning("No packages found in %s/%s", owner, repo)
		return nil, nil
	}

	final, err := tea.NewProgram(NewPackageSelectModel(pkgs), tea.WithContext(ctx)).Run()
	if err != nil {
		return nil, err
	}
	m, ok := final.(PackageSelectModel)
	if !ok {
		return nil, nil
	}
	return m.Selected(), nil
}

// printResult prints the dependents table followed by the run outcome.
func printResult(res *discovery.BatchResult, now time.Time) {
	if len(res.Data) > 0 {
		fmt.Fprintln(stdout, renderDependents(res.Data, now))
	}
	printStats(res.TotalFound, res.ProcessedCount, res.TotalCount, res.IsPartial)
	printNewline()

	switch res.Outcome {
	case discovery.OutcomeComplete:
		printSuccess("Found %d dependents (page %d)", res.TotalFound, res.Page)
	case discovery.OutcomePartial:
		printWarning("Partial results: %s", describeReason(res.Reason))
		if res.Error != "" {
			printDetail("%s", res.Error)
		}
		if res.ResumeAt != nil {
			printDetail("Budget resets %s (%s)", formatUntil(*res.ResumeAt, now), res.ResumeAt.Local().Format(time.Kitchen))
		}
	case discovery.OutcomeEmpty:
		if res.Reason == discovery.ReasonRepositoryNotFound || res.Reason == discovery.ReasonFailed {
			printError("%s", res.Error)
		} else {
			printInfo("%s", describeReason(res.Reason))
		}
	}
}

// validatePaging checks --page and --per-page before any API call is made.
// A zero --per-page means "use the configured page size".
func validatePaging(page, perPage int) error {
	if page < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "--page must be at least 1")
	}
	if perPage < 0 || perPage > discovery.MaxPageSize {
		return errors.New(errors.ErrCodeInvalidInput, "--per-page must be between 0 and %d (0 uses the configured size)", discovery.MaxPageSize)
	}
	return nil
}

func describeReason(r discovery.Reason) string {
	switch r {
	case discovery.ReasonNoPackages:
		return "no packages found"
	case discovery.ReasonNoDependents:
		return "no dependent repositories found"
	case discovery.ReasonRepositoryNotFound:
		return "repository not found"
	case discovery.ReasonRateLimited:
		return "GitHub API rate limit reached"
	case discovery.ReasonCanceled:
		return "canceled"
	case discovery.ReasonFailed:
		return "discovery failed"
	}
	return string(r)
}

// exitError turns a result into the command's error: runs that failed or
// were canceled exit non-zero, partial and empty results do not.
func exitError(res *discovery.BatchResult) error {
	switch res.Reason {
	case discovery.ReasonFailed, discovery.ReasonRepositoryNotFound, discovery.ReasonCanceled:
		return res.Err
	}
	return nil
}
