// Package command defines the cligate-cli commands on urfave/cli/v2.
//
// Every command follows the same pattern: parse flags, build a
// connection.Client from the global flags, call one endpoint and render
// the result in the --output format. Admin commands need --admin-key.
package command
