//go:build !unix && !windows

package supervisor

func privileged() bool { return false }
