package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/bluelamp/cligate/internal/cli/output"
)

// HealthCommand returns the health command.
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:   "health",
		Usage:  "Check server health",
		Action: healthAction,
	}
}

func healthAction(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	h, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("server unhealthy: %w", err)
	}
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, h, nil)
	}
	printf(c, "Server is %s\n  Target:  %s\n  Version: %s\n", h.Status, client.BaseURL(), h.Version)
	return nil
}
