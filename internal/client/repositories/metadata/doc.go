// Package metadata stores small named values of the client's local state in
// SQLite or bbolt.
package metadata
