//go:build linux

package watcher

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// checkPrivilege requires root or CAP_SYS_ADMIN in the permitted set.
func checkPrivilege() error {
	if os.Geteuid() == 0 {
		return nil
	}
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return fmt.Errorf("%w: capget: %v", ErrNoPermission, err)
	}
	if data[0].Permitted&(1<<unix.CAP_SYS_ADMIN) == 0 {
		return fmt.Errorf("%w: CAP_SYS_ADMIN not permitted", ErrNoPermission)
	}
	return nil
}
