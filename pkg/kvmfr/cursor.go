package kvmfr

import (
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

// CursorType 描述光标形状数据的像素格式。
type CursorType uint32

const (
	CursorTypeColor CursorType = iota
	CursorTypeMonochrome
	CursorTypeMaskedColor
)

// CursorFlags 放在 LGMP 消息的 udata 中，标记本条消息携带了哪些信息。
type CursorFlags uint32

const (
	CursorFlagPosition CursorFlags = 1 << 0
	CursorFlagVisible  CursorFlags = 1 << 1
	CursorFlagShape    CursorFlags = 1 << 2
)

func (f CursorFlags) Has(flag CursorFlags) bool { return f&flag == flag }

// 光标头布局（C 自然对齐）：
// x i16 | y i16 | type u32 | hx i8 | hy i8 | pad[2] | width u32 | height u32 | pitch u32
const (
	cursorXOff      = 0
	cursorYOff      = 2
	cursorTypeOff   = 4
	cursorHXOff     = 8
	cursorHYOff     = 9
	cursorWidthOff  = 12
	cursorHeightOff = 16
	cursorPitchOff  = 20

	// CursorSize 为光标头结构的固定大小。
	CursorSize = 24
)

// Cursor 是指针通道消息的零拷贝视图。
type Cursor struct {
	b []byte
}

// ParseCursor 在长度足够时把 b 解释为光标头，否则返回 ErrCursorMessageTooSmall。
func ParseCursor(b []byte) (Cursor, error) {
	if len(b) < CursorSize {
		return Cursor{}, merr.WrapErrCursorMessageTooSmall(CursorSize, len(b))
	}
	return Cursor{b: b}, nil
}

func (c Cursor) X() int16 { return int16(byteOrder.Uint16(c.b[cursorXOff:])) }
func (c Cursor) Y() int16 { return int16(byteOrder.Uint16(c.b[cursorYOff:])) }
func (c Cursor) Type() CursorType { return CursorType(byteOrder.Uint32(c.b[cursorTypeOff:])) }
func (c Cursor) HotX() int8 { return int8(c.b[cursorHXOff]) }
func (c Cursor) HotY() int8 { return int8(c.b[cursorHYOff]) }
func (c Cursor) Width() uint32 { return byteOrder.Uint32(c.b[cursorWidthOff:]) }
func (c Cursor) Height() uint32 { return byteOrder.Uint32(c.b[cursorHeightOff:]) }
func (c Cursor) Pitch() uint32 { return byteOrder.Uint32(c.b[cursorPitchOff:]) }

// Clone 见 Frame.Clone。
func (c Cursor) Clone() Cursor {
	return Cursor{b: append([]byte(nil), c.b...)}
}

// Shape 返回光标头之后的形状数据原始字节。
func (c Cursor) Shape() []byte {
	return c.b[CursorSize:]
}

// CursorInfo 为编码光标头时使用的字段集合。
type CursorInfo struct {
	X, Y          int16
	Type          CursorType
	HotX, HotY    int8
	Width, Height uint32
	Pitch         uint32
}

// PutCursor 将光标头编码到 dst，dst 长度不得小于 CursorSize。
func PutCursor(dst []byte, info CursorInfo) {
	_ = dst[CursorSize-1]
	clear(dst[:CursorSize])
	byteOrder.PutUint16(dst[cursorXOff:], uint16(info.X))
	byteOrder.PutUint16(dst[cursorYOff:], uint16(info.Y))
	byteOrder.PutUint32(dst[cursorTypeOff:], uint32(info.Type))
	dst[cursorHXOff] = byte(info.HotX)
	dst[cursorHYOff] = byte(info.HotY)
	byteOrder.PutUint32(dst[cursorWidthOff:], info.Width)
	byteOrder.PutUint32(dst[cursorHeightOff:], info.Height)
	byteOrder.PutUint32(dst[cursorPitchOff:], info.Pitch)
}
