package kvmfr

import (
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/merr"
)

// MaxDamageRects 为单帧可携带的最大脏矩形数量。
const MaxDamageRects = 64

// FrameType 描述帧像素格式。
type FrameType uint32

const (
	FrameTypeInvalid FrameType = iota
	FrameTypeBGRA
	FrameTypeRGBA
	FrameTypeRGBA10
	FrameTypeRGBA16F
	FrameTypeBGR32
	FrameTypeRGB24
)

// FrameRotation 描述宿主侧画面旋转。
type FrameRotation uint32

const (
	FrameRot0 FrameRotation = iota
	FrameRot90
	FrameRot180
	FrameRot270
)

// FrameFlags 为帧属性位。
type FrameFlags uint32

const (
	FrameFlagBlockScreensaver  FrameFlags = 1 << 0
	FrameFlagRequestActivation FrameFlags = 1 << 1
	FrameFlagTruncated         FrameFlags = 1 << 2
)

// DamageRect 为一块发生变化的屏幕区域。
type DamageRect struct {
	X, Y, Width, Height uint32
}

// 帧头布局，全部为小端 u32。
const (
	frameFormatVerOff    = 0
	frameSerialOff       = 4
	frameTypeOff         = 8
	frameScreenWidthOff  = 12
	frameScreenHeightOff = 16
	frameDataWidthOff    = 20
	frameDataHeightOff   = 24
	frameFrameWidthOff   = 28
	frameFrameHeightOff  = 32
	frameRotationOff     = 36
	frameStrideOff       = 40
	framePitchOff        = 44
	frameOffsetOff       = 48
	frameDamageCountOff  = 52
	frameDamageRectsOff  = 56
	damageRectSize       = 16
	frameFlagsOff        = frameDamageRectsOff + MaxDamageRects*damageRectSize

	// FrameSize 为帧头结构的固定大小。
	FrameSize = frameFlagsOff + 4
)

// Frame 是帧通道消息的零拷贝视图。
type Frame struct {
	b []byte
}

// ParseFrame 在长度足够时把 b 解释为帧头，否则返回 ErrFrameMessageTooSmall。
func ParseFrame(b []byte) (Frame, error) {
	if len(b) < FrameSize {
		return Frame{}, merr.WrapErrFrameMessageTooSmall(FrameSize, len(b))
	}
	return Frame{b: b}, nil
}

func (f Frame) u32(off int) uint32 { return byteOrder.Uint32(f.b[off:]) }

func (f Frame) FormatVer() uint32 { return f.u32(frameFormatVerOff) }
func (f Frame) FrameSerial() uint32 { return f.u32(frameSerialOff) }
func (f Frame) Type() FrameType { return FrameType(f.u32(frameTypeOff)) }
func (f Frame) ScreenWidth() uint32 { return f.u32(frameScreenWidthOff) }
func (f Frame) ScreenHeight() uint32 { return f.u32(frameScreenHeightOff) }
func (f Frame) DataWidth() uint32 { return f.u32(frameDataWidthOff) }
func (f Frame) DataHeight() uint32 { return f.u32(frameDataHeightOff) }
func (f Frame) FrameWidth() uint32 { return f.u32(frameFrameWidthOff) }
func (f Frame) FrameHeight() uint32 { return f.u32(frameFrameHeightOff) }
func (f Frame) Rotation() FrameRotation { return FrameRotation(f.u32(frameRotationOff)) }
func (f Frame) Stride() uint32 { return f.u32(frameStrideOff) }
func (f Frame) Pitch() uint32 { return f.u32(framePitchOff) }
func (f Frame) Offset() uint32 { return f.u32(frameOffsetOff) }
func (f Frame) Flags() FrameFlags { return FrameFlags(f.u32(frameFlagsOff)) }

// DamageRects 返回有效的脏矩形，数量被钳制在 MaxDamageRects 以内。
func (f Frame) DamageRects() []DamageRect {
	n := int(f.u32(frameDamageCountOff))
	if n > MaxDamageRects {
		n = MaxDamageRects
	}
	rects := make([]DamageRect, n)
	for i := range rects {
		off := frameDamageRectsOff + i*damageRectSize
		rects[i] = DamageRect{
			X:      f.u32(off),
			Y:      f.u32(off + 4),
			Width:  f.u32(off + 8),
			Height: f.u32(off + 12),
		}
	}
	return rects
}

// Clone 把视图连同尾部数据拷贝到进程私有内存，返回的 Frame 不再引用共享内存。
func (f Frame) Clone() Frame {
	return Frame{b: append([]byte(nil), f.b...)}
}

// Trailer 返回帧头之后的原始字节，不做解码。
func (f Frame) Trailer() []byte {
	return f.b[FrameSize:]
}

// FrameInfo 为编码帧头时使用的字段集合。
type FrameInfo struct {
	FormatVer    uint32
	FrameSerial  uint32
	Type         FrameType
	ScreenWidth  uint32
	ScreenHeight uint32
	DataWidth    uint32
	DataHeight   uint32
	FrameWidth   uint32
	FrameHeight  uint32
	Rotation     FrameRotation
	Stride       uint32
	Pitch        uint32
	Offset       uint32
	DamageRects  []DamageRect
	Flags        FrameFlags
}

// PutFrame 将帧头编码到 dst，dst 长度不得小于 FrameSize。
func PutFrame(dst []byte, info FrameInfo) {
	_ = dst[FrameSize-1]
	clear(dst[:FrameSize])
	put := func(off int, v uint32) { byteOrder.PutUint32(dst[off:], v) }
	put(frameFormatVerOff, info.FormatVer)
	put(frameSerialOff, info.FrameSerial)
	put(frameTypeOff, uint32(info.Type))
	put(frameScreenWidthOff, info.ScreenWidth)
	put(frameScreenHeightOff, info.ScreenHeight)
	put(frameDataWidthOff, info.DataWidth)
	put(frameDataHeightOff, info.DataHeight)
	put(frameFrameWidthOff, info.FrameWidth)
	put(frameFrameHeightOff, info.FrameHeight)
	put(frameRotationOff, uint32(info.Rotation))
	put(frameStrideOff, info.Stride)
	put(framePitchOff, info.Pitch)
	put(frameOffsetOff, info.Offset)
	rects := info.DamageRects
	if len(rects) > MaxDamageRects {
		rects = rects[:MaxDamageRects]
	}
	put(frameDamageCountOff, uint32(len(rects)))
	for i, r := range rects {
		off := frameDamageRectsOff + i*damageRectSize
		put(off, r.X)
		put(off+4, r.Y)
		put(off+8, r.Width)
		put(off+12, r.Height)
	}
	put(frameFlagsOff, uint32(info.Flags))
}
