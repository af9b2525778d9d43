package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/dependents/pkg/errors"
)

// rateLimitCommand creates the ratelimit command.
func (c *CLI) rateLimitCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "ratelimit",
		Aliases: []string{"limits"},
		Short:   "Show the remaining GitHub API budget",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRateLimit(cmd.Context(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print limits as JSON")

	return cmd
}

func (c *CLI) runRateLimit(ctx context.Context, asJSON bool) error {
	eng, cfg, err := c.newEngine(ctx)
	if err != nil {
		return err
	}
	snap, err := eng.Limits(ctx)
	if err != nil {
		printError("%s", errors.UserMessage(err))
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	printKeyValue("API", cfg.GitHub.BaseURL)
	auth := "token"
	if cfg.GitHub.Token == "" {
		auth = StyleWarning.Render("none")
	}
	printKeyValue("Auth", auth)
	printNewline()
	fmt.Fprintln(stdout, renderLimits(snap, time.Now()))
	if at := snap.ResumeAt(); !at.IsZero() {
		printNewline()
		printWarning("Budget exhausted; resets %s", formatUntil(at, time.Now()))
	}
	return nil
}
