// Package kvmfr 定义 KVMFR 协议在 LGMP 队列上交换的固定布局结构。
//
// 所有视图类型都只是对消息字节的只读包装：构造时校验长度，读取字段时直接按
// 小端序解析原始内存，不做任何拷贝。像素与光标形状数据本身不在这里解码。
package kvmfr

import (
	"bytes"
	"encoding/binary"

	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

const (
	// Version 为本客户端支持的 KVMFR 协议版本，必须与宿主完全一致。
	Version uint32 = 20

	// QueuePointer/QueueFrame 为宿主在 LGMP 中创建的两个队列编号。
	QueuePointer uint32 = 1
	QueueFrame   uint32 = 2

	// QueuePointerLen/QueueFrameLen 为宿主侧对应队列的消息槽数量。
	QueuePointerLen = 20
	QueueFrameLen   = 2
)

// Magic 为兼容性头部的固定前缀。
var Magic = [8]byte{'K', 'V', 'M', 'F', 'R', '-', '-', '-'}

var byteOrder = binary.LittleEndian

// Header 布局：magic[8] | version u32 | hostver[32] | features u32。
const (
	headerMagicOff    = 0
	headerVersionOff  = 8
	headerHostVerOff  = 12
	headerFeaturesOff = 44
	hostVersionLen    = 32

	// HeaderSize 为注册元数据必须精确匹配的字节数。
	HeaderSize = 48
)

// Feature 为宿主声明的能力位。
type Feature uint32

const (
	FeatureSetCursorPos Feature = 1 << 0
)

// Header 是宿主注册元数据的只读视图。
type Header struct {
	b []byte
}

// CheckHeader 校验注册元数据：长度必须精确等于 HeaderSize，magic 与 version
// 必须与本客户端一致。任何不一致都返回携带期望版本号的 ErrVersionMismatch。
func CheckHeader(udata []byte) (Header, error) {
	if len(udata) != HeaderSize {
		return Header{}, merr.WrapErrVersionMismatch(Version, 0, "unexpected metadata size")
	}
	h := Header{b: udata}
	magic := h.Magic()
	if !bytes.Equal(magic[:], Magic[:]) {
		return Header{}, merr.WrapErrVersionMismatch(Version, 0, "bad magic")
	}
	if v := h.Version(); v != Version {
		return Header{}, merr.WrapErrVersionMismatch(Version, v, "version field mismatch")
	}
	return h, nil
}

func (h Header) Magic() (m [8]byte) {
	copy(m[:], h.b[headerMagicOff:headerVersionOff])
	return m
}

func (h Header) Version() uint32 {
	return byteOrder.Uint32(h.b[headerVersionOff:])
}

// HostVersion 返回宿主程序的版本字符串（去掉结尾的 NUL）。
func (h Header) HostVersion() string {
	raw := h.b[headerHostVerOff : headerHostVerOff+hostVersionLen]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

func (h Header) Features() Feature {
	return Feature(byteOrder.Uint32(h.b[headerFeaturesOff:]))
}

// PutHeader 将头部写入 dst，dst 长度不得小于 HeaderSize。供宿主模拟与测试使用。
func PutHeader(dst []byte, version uint32, hostVersion string, features Feature) {
	_ = dst[HeaderSize-1]
	copy(dst[headerMagicOff:], Magic[:])
	byteOrder.PutUint32(dst[headerVersionOff:], version)
	hv := dst[headerHostVerOff : headerHostVerOff+hostVersionLen]
	clear(hv)
	copy(hv[:hostVersionLen-1], hostVersion)
	byteOrder.PutUint32(dst[headerFeaturesOff:], uint32(features))
}

// NewHeader 分配并编码一份完整的注册元数据。
func NewHeader(hostVersion string, features Feature) []byte {
	b := make([]byte, HeaderSize)
	PutHeader(b, Version, hostVersion, features)
	return b
}
