package command

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/bluelamp/cligate/internal/cli/output"
)

// TokensCommand returns the tokens command.
func TokensCommand() *cli.Command {
	return &cli.Command{
		Name:      "tokens",
		Usage:     "List active credentials of a user",
		ArgsUsage: "USER_ID",
		Action:    tokensAction,
	}
}

func tokensAction(c *cli.Context) error {
	userID, err := requireArg(c, "user ID")
	if err != nil {
		return err
	}
	client, err := newAdminClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := client.ListTokens(ctx, userID)
	if err != nil {
		return err
	}
	if err := render(c, list, func(wide bool) *output.Table {
		t := &output.Table{Headers: []string{"ID", "CLIENT", "CREATED", "EXPIRES", "LAST USED", "USES"}}
		if wide {
			t.Headers = append(t.Headers, "HOST", "PLATFORM")
		}
		for _, tok := range list.Tokens {
			lastUsed := "-"
			if tok.LastUsedAt != nil {
				lastUsed = tok.LastUsedAt.Local().Format(output.TimeLayout)
			}
			row := []string{
				tok.ID,
				dash(tok.ClientType),
				tok.CreatedAt.Local().Format(output.TimeLayout),
				tok.ExpiresAt.Local().Format(output.TimeLayout),
				lastUsed,
				strconv.FormatInt(tok.UsageCount, 10),
			}
			if wide {
				row = append(row, dash(tok.DeviceInfo.Hostname), dash(tok.DeviceInfo.Platform))
			}
			t.AddRow(row...)
		}
		return t
	}); err != nil {
		return err
	}
	printf(c, "\nTotal: %d active credentials\n", list.Count)
	return nil
}

// StatsCommand returns the stats command.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show credential statistics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "user-id",
				Aliases: []string{"u"},
				Usage:   "limit to one user",
			},
		},
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	client, err := newAdminClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	st, err := client.Stats(ctx, c.String("user-id"))
	if err != nil {
		return err
	}
	return render(c, st, func(bool) *output.Table {
		t := &output.Table{Headers: []string{"METRIC", "VALUE"}}
		if st.UserID != "" {
			t.AddRow("user", st.UserID)
		}
		t.AddRow("total", strconv.Itoa(st.Tokens.Total))
		t.AddRow("active", strconv.Itoa(st.Tokens.Active))
		t.AddRow("expired", strconv.Itoa(st.Tokens.Expired))
		t.AddRow("inactive", strconv.Itoa(st.Tokens.Inactive))
		t.AddRow("recently used", strconv.Itoa(st.Tokens.RecentlyUsed))
		for _, reason := range sortedKeys(st.Tokens.ByReason) {
			t.AddRow("inactive: "+reason, strconv.Itoa(st.Tokens.ByReason[reason]))
		}
		t.AddRow("trap keys", strconv.Itoa(st.TrapKeys))
		t.AddRow("audit queue", strconv.Itoa(st.AuditQueueDepth))
		return t
	})
}

// SessionsCommand returns the sessions command group.
func SessionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "sessions",
		Aliases: []string{"sess"},
		Usage:   "Manage client sessions",
		Subcommands: []*cli.Command{
			{
				Name:      "clear",
				Usage:     "End every session of a user",
				ArgsUsage: "USER_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "skip confirmation",
					},
				},
				Action: sessionsClearAction,
			},
		},
	}
}

func sessionsClearAction(c *cli.Context) error {
	userID, err := requireArg(c, "user ID")
	if err != nil {
		return err
	}
	if !c.Bool("force") && !confirm(c, fmt.Sprintf("This ends every session of user '%s'. Type the user ID to confirm: ", userID), userID) {
		fmt.Fprintln(c.App.ErrWriter, "Cancelled.")
		return nil
	}

	client, err := newAdminClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := client.ClearSessions(ctx, userID)
	if err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, res, nil)
	}
	printf(c, "%d sessions cleared for user '%s'.\n", res.Cleared, res.UserID)
	return nil
}

// UnblockCommand returns the unblock command.
func UnblockCommand() *cli.Command {
	return &cli.Command{
		Name:      "unblock",
		Usage:     "Lift a security block after a successful appeal",
		ArgsUsage: "USER_ID",
		Action:    unblockAction,
	}
}

func unblockAction(c *cli.Context) error {
	userID, err := requireArg(c, "user ID")
	if err != nil {
		return err
	}
	client, err := newAdminClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := client.Unblock(ctx, userID)
	if err != nil {
		return err
	}
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, res, nil)
	}
	printf(c, "User '%s' is now %s. Previously revoked credentials stay revoked.\n", res.UserID, res.Status)
	return nil
}

// confirm prompts on ErrWriter and reports whether the reply equals want.
func confirm(c *cli.Context, prompt, want string) bool {
	fmt.Fprint(c.App.ErrWriter, prompt)
	line, _ := bufio.NewReader(c.App.Reader).ReadString('\n')
	return strings.TrimSpace(line) == want
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
