//go:build !linux

package watcher

import "os"

func checkPrivilege() error {
	if os.Geteuid() == 0 {
		return nil
	}
	return ErrNoPermission
}
