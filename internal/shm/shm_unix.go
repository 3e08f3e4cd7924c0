//go:build unix

package shm

import (
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

// Open 以读写、共享方式映射 path 对应的整个文件。
//
// 文件必须已由宿主创建且大小非零；任何打开、探测或映射失败都返回 ErrShmDevice。
func Open(path string) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, merr.WrapErrShmDevice(path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, merr.WrapErrShmDevice(path, err)
	}
	size := fi.Size()
	if size <= 0 {
		_ = f.Close()
		return nil, merr.WrapErrShmDeviceReason(path, "empty shared memory file")
	}
	if int64(int(size)) != size {
		_ = f.Close()
		return nil, merr.WrapErrShmDeviceReason(path, "shared memory file too large to map")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, merr.WrapErrShmDevice(path, errors.Wrap(err, "mmap"))
	}

	return &Region{
		name: path,
		data: data,
		release: func() error {
			return errors.CombineErrors(unix.Munmap(data), f.Close())
		},
	}, nil
}
