// Package confloader loads configuration with koanf and watches files for
// changes with fsnotify.
//
// Priority (highest to lowest):
//
//  1. Maps loaded with LoadMap (command-line flags)
//  2. Environment variables (CLIGATE_*)
//  3. Variables from an optional .env file
//  4. The YAML configuration file
//  5. Values already present in the target struct (defaults)
package confloader
