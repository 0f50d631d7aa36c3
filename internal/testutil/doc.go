// Package testutil contains builders and a persistence harness shared by the
// framework tests. It is not intended for production usage.
package testutil
