package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/integrations/github"
)

// packagesCommand creates the packages command.
func (c *CLI) packagesCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "packages <owner/repo | url>",
		Short: "List the npm packages a repository publishes",
		Long: `List the npm packages published from a repository's packages/ directory.

Examples:
  dependents packages acme/widgets
  dependents packages https://github.com/acme/widgets --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPackages(cmd.Context(), args[0], asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print packages as JSON")

	return cmd
}

func (c *CLI) runPackages(ctx context.Context, ref string, asJSON bool) error {
	owner, repo, err := github.ParseRepoRef(ref)
	if err != nil {
		return err
	}
	eng, _, err := c.newEngine(ctx)
	if err != nil {
		return err
	}

	prog := newProgress(c.Logger)
	spinner := newSpinner(ctx, fmt.Sprintf("Listing packages of %s/%s...", owner, repo))
	spinner.Start()
	pkgs, err := eng.DiscoverPackages(ctx, owner, repo)
	spinner.Stop()
	if err != nil {
		printError("%s", errors.UserMessage(err))
		return err
	}
	prog.done(fmt.Sprintf("Found %d packages", len(pkgs)))

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(packagesResponse{Packages: pkgs})
	}

	if len(pkgs) == 0 {
		printWarning("No packages found in %s/%s", owner, repo)
		return nil
	}
	fmt.Fprintln(stdout, renderPackages(pkgs))
	printNewline()
	printNextStep("Find dependents", fmt.Sprintf("%s find %s/%s", appName, owner, repo))
	return nil
}
