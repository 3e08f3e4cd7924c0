//go:build !unix

package shm

import (
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

// Open 在不支持 mmap 的平台上总是失败。
func Open(path string) (*Region, error) {
	return nil, merr.WrapErrShmDeviceReason(path, "shared memory mapping is not supported on this platform")
}
