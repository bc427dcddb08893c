// Package storage publishes and fetches custody tokens through pluggable backends.
//
// A token is useless without both the operator's password and the machine key of
// the host that sealed it, so it can be handed to ordinary configuration storage:
//
//   - File storage: one file per token in a local directory
//   - Dotenv storage: a KEY=value line in a .env file, next to other settings
//   - S3-compatible storage for cloud deployments
//   - Vault KV v2 storage
//
// # Storage URI Format
//
// Backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/custody/tokens/
//   - env:///srv/app/.env
//   - s3://bucket-name/prefix/?region=us-west-2
//   - vault://vault.example.com:8200/secret/deployer
//
// # Token Names
//
// Tokens are stored under a name that is valid as an environment variable, a file
// name and an object key alike. interfaces.DefaultTokenName is the name consumers
// read by default.
//
// # Redundancy
//
// MultiTokenStore stores to every available backend and fetches from the first
// one that has the token:
//
//	factory := storage.NewTokenStoreFactory(logger)
//	locations, err := storage.ParseLocations([]string{
//	    "env:///srv/app/.env",
//	    "s3://bucket/custody/?region=us-west-2",
//	})
//	store, err := factory.CreateMultiBackend(locations)
//	err = store.Store(ctx, interfaces.DefaultTokenName, token)
package storage
