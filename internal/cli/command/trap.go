package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/bluelamp/cligate/internal/cli/connection"
	"github.com/bluelamp/cligate/internal/cli/output"
)

func trapFilterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "user-id",
			Aliases: []string{"u"},
			Usage:   "only entries attributed to this user",
		},
		&cli.StringFlag{
			Name:  "trap-key",
			Usage: "only entries for this trap key",
		},
		&cli.StringFlag{
			Name:  "response-type",
			Usage: "trap_prompt, error or blocked",
		},
		&cli.StringFlag{
			Name:  "since",
			Usage: "lower bound: RFC 3339 time or a duration like 24h",
		},
		&cli.StringFlag{
			Name:  "until",
			Usage: "upper bound: RFC 3339 time or a duration like 1h",
		},
	}
}

// TrapCommand returns the trap command group.
func TrapCommand() *cli.Command {
	return &cli.Command{
		Name:  "trap",
		Usage: "Inspect trap key activity",
		Subcommands: []*cli.Command{
			{
				Name:  "logs",
				Usage: "List trap audit entries, newest first",
				Flags: append(trapFilterFlags(), &cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"n"},
					Usage:   "maximum entries",
					Value:   50,
				}),
				Action: trapLogsAction,
			},
			{
				Name:   "stats",
				Usage:  "Summarize trap activity",
				Flags:  trapFilterFlags(),
				Action: trapStatsAction,
			},
		},
	}
}

// parseTrapFilter reads the filter flags. Relative bounds are taken back
// from now.
func parseTrapFilter(c *cli.Context, now time.Time) (connection.TrapFilter, error) {
	f := connection.TrapFilter{
		UserID:       c.String("user-id"),
		TrapKey:      c.String("trap-key"),
		ResponseType: c.String("response-type"),
		Limit:        c.Int("limit"),
	}
	var err error
	if f.Since, err = parseBound(c.String("since"), now); err != nil {
		return f, fmt.Errorf("--since: %w", err)
	}
	if f.Until, err = parseBound(c.String("until"), now); err != nil {
		return f, fmt.Errorf("--until: %w", err)
	}
	return f, nil
}

func parseBound(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC 3339 or a duration, got %q", s)
	}
	return t, nil
}

func trapLogsAction(c *cli.Context) error {
	f, err := parseTrapFilter(c, time.Now())
	if err != nil {
		return err
	}
	client, err := newAdminClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	logs, err := client.TrapLogs(ctx, f)
	if err != nil {
		return err
	}
	if err := render(c, logs, func(wide bool) *output.Table {
		t := &output.Table{Headers: []string{"TIME", "CLASS", "KEY", "USER", "IP", "RESPONSE"}}
		if wide {
			t.Headers = append(t.Headers, "METHOD", "ENDPOINT", "RESOURCE", "TRACKING", "USER AGENT")
		}
		for _, e := range logs.Entries {
			user := "-"
			if e.IdentifiedUserID != nil {
				user = *e.IdentifiedUserID
			}
			row := []string{
				e.Timestamp.Local().Format(output.TimeLayout),
				e.TrapClass,
				e.TrapKey,
				user,
				dash(e.IPAddress),
				e.ResponseType,
			}
			if wide {
				row = append(row, e.Method, e.Endpoint, dash(e.ResourceID), dash(e.TrackingID), dash(e.UserAgent))
			}
			t.AddRow(row...)
		}
		return t
	}); err != nil {
		return err
	}
	printf(c, "\nTotal: %d entries\n", logs.Count)
	return nil
}

func trapStatsAction(c *cli.Context) error {
	f, err := parseTrapFilter(c, time.Now())
	if err != nil {
		return err
	}
	client, err := newAdminClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	st, err := client.TrapStats(ctx, f)
	if err != nil {
		return err
	}
	return render(c, st, func(bool) *output.Table {
		t := &output.Table{Headers: []string{"METRIC", "VALUE"}}
		t.AddRow("total", strconv.Itoa(st.Total))
		for _, k := range sortedKeys(st.ByTrapClass) {
			t.AddRow("class: "+k, strconv.Itoa(st.ByTrapClass[k]))
		}
		for _, k := range sortedKeys(st.ByResponseType) {
			t.AddRow("response: "+k, strconv.Itoa(st.ByResponseType[k]))
		}
		t.AddRow("unique IPs", strconv.Itoa(st.UniqueIPs))
		t.AddRow("unattributed", strconv.Itoa(st.Unattributed))
		users := "-"
		if len(st.IdentifiedUsers) > 0 {
			users = strings.Join(st.IdentifiedUsers, ",")
		}
		t.AddRow("identified users", users)
		if st.FirstSeen != nil {
			t.AddRow("first seen", st.FirstSeen.Local().Format(output.TimeLayout))
		}
		if st.LastSeen != nil {
			t.AddRow("last seen", st.LastSeen.Local().Format(output.TimeLayout))
		}
		return t
	})
}
