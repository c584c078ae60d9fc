// Package handler provides the HTTP handlers for cligate.
//
// Login, verify and logout serve the CLI. Resource routes under /prompts
// sit behind a credential guard that classifies the presented credential
// before anything else runs: the winning trap key is served decoy
// content, losing trap keys get a randomized error in the usual envelope, and
// only real credentials reach the resource handlers. Admin routes cover
// token listings, stats, trap audit queries, session clears and unblocks.
package handler
