// Package output renders cligate-cli results as table, JSON or YAML.
//
// Values that implement Tabular choose their own columns; anything else
// is laid out by reflection over exported fields, using json tag names
// for headers. A `table:"wide"` tag hides a column unless --wide is set,
// and `table:"-"` always hides it.
package output
