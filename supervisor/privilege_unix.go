//go:build unix

package supervisor

import "os"

func privileged() bool {
	return os.Geteuid() == 0
}
