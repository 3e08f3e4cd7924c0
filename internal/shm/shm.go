// Package shm 负责把宿主导出的共享内存文件（ivshmem / kvmfr 设备或
// /dev/shm 下的普通文件）映射到本进程地址空间。
package shm

// Region 为一段已映射的共享内存区域。
type Region struct {
	name string
	data []byte
	// release 解除映射并关闭底层文件，由平台相关实现设置。
	release func() error
}

// NewRegion 用已有的字节切片构造区域，不做任何映射，主要用于进程内宿主与测试。
func NewRegion(name string, data []byte) *Region {
	return &Region{name: name, data: data}
}

// Name 返回区域对应的路径或标识。
func (r *Region) Name() string {
	return r.name
}

// Bytes 返回映射后的内存，Close 之后不可再访问。
func (r *Region) Bytes() []byte {
	return r.data
}

// Len 返回区域大小。
func (r *Region) Len() int {
	return len(r.data)
}

// Close 解除映射，重复调用是安全的。
func (r *Region) Close() error {
	release := r.release
	r.release = nil
	r.data = nil
	if release == nil {
		return nil
	}
	return release()
}

// Opener 按路径打开共享内存区域。
type Opener func(path string) (*Region, error)
