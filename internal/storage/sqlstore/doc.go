// Package sqlstore implements the credential, user and audit repositories
// on gorm with the SQLite driver.
//
// All timestamps are written in UTC. Conditional state changes (usage
// accounting, deactivation) are single UPDATE ... WHERE statements, so a
// revoke and a verify racing on one row serialize in the database.
package sqlstore
