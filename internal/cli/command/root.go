package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/bluelamp/cligate/internal/cli/connection"
	"github.com/bluelamp/cligate/internal/cli/output"
	"github.com/bluelamp/cligate/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:                 "cligate-cli",
		Usage:                "cligate credential and trap administration tool",
		Version:              buildinfo.String(),
		Flags:                globalFlags(),
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			LoginCommand(),
			VerifyCommand(),
			LogoutCommand(),
			TokensCommand(),
			StatsCommand(),
			TrapCommand(),
			SessionsCommand(),
			UnblockCommand(),
			HealthCommand(),
			WatermarkCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "cligate server address",
			EnvVars: []string{"CLIGATE_SERVER"},
			Value:   "localhost:8080",
		},
		&cli.StringFlag{
			Name:    "admin-key",
			Aliases: []string{"K"},
			Usage:   "admin key for administrative endpoints",
			EnvVars: []string{"CLIGATE_ADMIN_KEY"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "show wide output (more columns)",
		},
		&cli.StringFlag{
			Name:    "ca-file",
			Usage:   "PEM bundle trusted in addition to the system roots",
			EnvVars: []string{"CLIGATE_CA_FILE"},
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "skip TLS certificate verification",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "request timeout",
			Value: connection.DefaultTimeout,
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Server   string
	AdminKey string
	Output   output.Format
	Wide     bool
	CAFile   string
	Insecure bool
	Timeout  time.Duration
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		format = output.FormatTable
	}
	return &GlobalFlags{
		Server:   c.String("server"),
		AdminKey: c.String("admin-key"),
		Output:   format,
		Wide:     c.Bool("wide"),
		CAFile:   c.String("ca-file"),
		Insecure: c.Bool("insecure"),
		Timeout:  c.Duration("timeout"),
	}
}

var errAdminKeyRequired = errors.New("admin key required (--admin-key or CLIGATE_ADMIN_KEY)")

// newClient builds a client from the global flags.
func newClient(c *cli.Context) (*connection.Client, error) {
	flags := ParseGlobalFlags(c)
	return connection.NewClient(connection.Options{
		Server:   flags.Server,
		AdminKey: flags.AdminKey,
		CAFile:   flags.CAFile,
		Insecure: flags.Insecure,
		Timeout:  flags.Timeout,
	})
}

// newAdminClient is newClient for commands that need the admin key.
func newAdminClient(c *cli.Context) (*connection.Client, error) {
	if c.String("admin-key") == "" {
		return nil, errAdminKeyRequired
	}
	return newClient(c)
}

// requestContext bounds one command's requests.
func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	timeout := c.Duration("timeout")
	if timeout <= 0 {
		timeout = connection.DefaultTimeout
	}
	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, timeout)
}

// render writes data in the selected format. table, when set, replaces
// the reflective table layout.
func render(c *cli.Context, data any, table func(wide bool) *output.Table) error {
	flags := ParseGlobalFlags(c)
	w := writer(c)
	if flags.Output == output.FormatTable && table != nil {
		return table(flags.Wide).Render(w)
	}
	return output.NewFormatter(flags.Output, flags.Wide).Format(w, data)
}

func writer(c *cli.Context) io.Writer {
	if c.App != nil && c.App.Writer != nil {
		return c.App.Writer
	}
	return io.Discard
}

// printf writes human-readable text, suppressed for json and yaml output.
func printf(c *cli.Context, format string, args ...any) {
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return
	}
	fmt.Fprintf(writer(c), format, args...)
}

// requireArg returns the first positional argument or a usage error.
func requireArg(c *cli.Context, name string) (string, error) {
	v := c.Args().First()
	if v == "" {
		return "", fmt.Errorf("%s required", name)
	}
	return v, nil
}
