// Package password implements the credential hashing primitives.
//
// # Output format
//
// Password hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can re-hash after the next successful login.
//
// Refresh secrets are random and high entropy, so [SecretHasher] uses a keyed
// HMAC-SHA256 digest instead of a memory-hard hash to keep rotation fast.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other goSession package.
//   - Log plaintext passwords, secrets or digests.
package password
