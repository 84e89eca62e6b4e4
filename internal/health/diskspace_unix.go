//go:build !windows

package health

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// DiskSpaceCheck reports unhealthy once free space under path drops below
// minFreeBytes, using statfs directly rather than shelling out to df.
func DiskSpaceCheck(path string, minFreeBytes uint64) Check {
	return func(ctx context.Context) CheckResult {
		var stat unix.Statfs_t
		if err := unix.Statfs(path, &stat); err != nil {
			return CheckResult{Status: StatusUnknown, Message: "statfs failed", Error: err.Error()}
		}
		free := stat.Bavail * uint64(stat.Bsize)
		if free < minFreeBytes {
			return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("%d bytes free, below %d minimum", free, minFreeBytes)}
		}
		return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%d bytes free", free)}
	}
}
