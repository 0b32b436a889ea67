// Package iox holds cleanup helpers for closers whose errors nobody can act on.
package iox

import "io"

// DiscardClose closes c and drops the error. Meant for defers on read
// paths, response bodies and watchers:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a func that closes c, for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(adapter))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}
