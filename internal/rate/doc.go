// Package rate provides Redis-backed fixed-window throttles for login attempts
// and refresh rotations.
//
// # Window semantics
//
// INCR + EXPIRE on the first hit. Key layout under the configured prefix:
//   - <prefix>:rl:login:<identifier>  failed logins per identifier
//   - <prefix>:rl:ip:<ip>             failed logins per client IP
//   - <prefix>:rl:refresh:<family>    rotations per refresh family
package rate
