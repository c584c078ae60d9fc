package command

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/bluelamp/cligate/internal/cli/connection"
	"github.com/bluelamp/cligate/internal/cli/output"
)

func tokenFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "token",
		Aliases: []string{"t"},
		Usage:   "CLI credential (blcli_...)",
		EnvVars: []string{"CLIGATE_TOKEN"},
	}
}

// LoginCommand returns the login command.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in and issue a CLI credential",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "email",
				Aliases:  []string{"e"},
				Usage:    "account email",
				EnvVars:  []string{"CLIGATE_EMAIL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "account password; read from stdin when omitted",
				EnvVars: []string{"CLIGATE_PASSWORD"},
			},
			&cli.StringFlag{
				Name:  "client-type",
				Usage: "session partition: cli, portal, editor-plugin",
				Value: "cli",
			},
			&cli.IntFlag{
				Name:  "expiration-days",
				Usage: "credential lifetime in days (server default when 0)",
			},
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "take over an existing session",
			},
		},
		Action: loginAction,
	}
}

func loginAction(c *cli.Context) error {
	password := c.String("password")
	if password == "" {
		var err error
		if password, err = readPassword(c); err != nil {
			return err
		}
	}

	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	hostname, _ := os.Hostname()
	res, err := client.Login(ctx, connection.LoginRequest{
		Email:          c.String("email"),
		Password:       password,
		ClientType:     c.String("client-type"),
		ExpirationDays: c.Int("expiration-days"),
		Force:          c.Bool("force"),
		DeviceInfo: &connection.DeviceInfo{
			Name:     "cligate-cli",
			Hostname: hostname,
			Platform: runtime.GOOS,
			Arch:     runtime.GOARCH,
		},
	})
	if err != nil {
		if connection.IsCode(err, "ACTIVE_SESSION_EXISTS") {
			return fmt.Errorf("%w\nrerun with --force to take over the existing session", err)
		}
		return err
	}

	return render(c, res, func(bool) *output.Table {
		t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
		t.AddRow("token", res.Token)
		t.AddRow("userId", res.UserID)
		t.AddRow("sessionId", res.SessionID)
		t.AddRow("clientType", res.ClientType)
		t.AddRow("expiresAt", res.ExpiresAt.Local().Format(output.TimeLayout))
		t.AddRow("tookOver", strconv.FormatBool(res.TookOver))
		return t
	})
}

// readPassword reads one line from the app's input.
func readPassword(c *cli.Context) (string, error) {
	in := c.App.Reader
	if in == nil {
		in = os.Stdin
	}
	fmt.Fprint(c.App.ErrWriter, "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("password required")
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password required")
	}
	return line, nil
}

// VerifyCommand returns the verify command.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check whether a credential is valid",
		ArgsUsage: "[TOKEN]",
		Flags:     []cli.Flag{tokenFlag()},
		Action:    verifyAction,
	}
}

func verifyAction(c *cli.Context) error {
	token, err := tokenArg(c)
	if err != nil {
		return err
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := client.Verify(ctx, token)
	if err != nil {
		if connection.IsCode(err, "SESSION_TERMINATED") {
			return fmt.Errorf("%w\nanother login took over this session; log in again", err)
		}
		return err
	}
	return render(c, res, func(bool) *output.Table {
		t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
		t.AddRow("userId", res.UserID)
		t.AddRow("tokenValid", strconv.FormatBool(res.TokenValid))
		t.AddRow("expiresAt", res.ExpiresAt.Local().Format(output.TimeLayout))
		t.AddRow("remaining", (time.Duration(res.RemainingTime) * time.Second).String())
		return t
	})
}

// LogoutCommand returns the logout command.
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:      "logout",
		Usage:     "Revoke a credential and end its session",
		ArgsUsage: "[TOKEN]",
		Flags:     []cli.Flag{tokenFlag()},
		Action:    logoutAction,
	}
}

func logoutAction(c *cli.Context) error {
	token, err := tokenArg(c)
	if err != nil {
		return err
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := client.Logout(ctx, token); err != nil {
		return err
	}
	printf(c, "Logged out.\n")
	return nil
}

// tokenArg prefers the positional argument over --token.
func tokenArg(c *cli.Context) (string, error) {
	if v := c.Args().First(); v != "" {
		return v, nil
	}
	if v := c.String("token"); v != "" {
		return v, nil
	}
	return "", errors.New("token required (argument, --token or CLIGATE_TOKEN)")
}
