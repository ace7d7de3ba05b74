// Package session persists refresh-token records and rotates them atomically.
//
// # Backends
//
// [RedisStore] keeps each record in a hash and runs rotation and revocation as
// Lua scripts. [PostgresStore] keeps records in the refresh_tokens table
// (see [Migrate]) and rotates inside one transaction.
//
// Both guarantee that for a given record at most one [Store.RotateRecord]
// call succeeds; every other caller observes [ErrRecordInactive]. Backend
// failures wrap [ErrStoreUnavailable].
//
// # What this package must NOT do
//
//   - Import goSession or jwt (no upward imports).
//   - Store raw refresh secrets; only keyed digests reach this package.
package session
