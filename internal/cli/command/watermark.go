package command

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/bluelamp/cligate/internal/cli/output"
	"github.com/bluelamp/cligate/pkg/watermark"
)

// WatermarkCommand returns the watermark command group. It works on local
// files and never contacts the server.
func WatermarkCommand() *cli.Command {
	return &cli.Command{
		Name:  "watermark",
		Usage: "Inspect tracking marks in leaked decoy content",
		Subcommands: []*cli.Command{
			{
				Name:      "extract",
				Usage:     "Print the tracking IDs embedded in a file",
				ArgsUsage: "FILE|-",
				Action:    watermarkExtractAction,
			},
			{
				Name:      "strip",
				Usage:     "Print a file with tracking marks removed",
				ArgsUsage: "FILE|-",
				Action:    watermarkStripAction,
			},
		},
	}
}

// readInput reads a file argument, or the app's input for "-".
func readInput(c *cli.Context) (string, error) {
	name, err := requireArg(c, "file")
	if err != nil {
		return "", err
	}
	var data []byte
	if name == "-" {
		data, err = io.ReadAll(c.App.Reader)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

func watermarkExtractAction(c *cli.Context) error {
	text, err := readInput(c)
	if err != nil {
		return err
	}
	ids := watermark.Extract(text)
	if ParseGlobalFlags(c).Output != output.FormatTable {
		return render(c, map[string]any{"trackingIds": ids}, nil)
	}
	if len(ids) == 0 {
		return errors.New("no tracking marks found")
	}
	for _, id := range ids {
		fmt.Fprintln(writer(c), id)
	}
	return nil
}

func watermarkStripAction(c *cli.Context) error {
	text, err := readInput(c)
	if err != nil {
		return err
	}
	_, err = io.WriteString(writer(c), watermark.Strip(text))
	return err
}
