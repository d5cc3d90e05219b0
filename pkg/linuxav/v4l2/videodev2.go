//go:build linux

package v4l2

import "unsafe"

// The structs below contain no pointers or longs, so their layout is the
// same on every supported architecture.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Fmtdesc{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2FrmsizeDiscrete{})]byte{}
	_ [24]byte  = [unsafe.Sizeof(v4l2FrmsizeStepwise{})]byte{}
	_ [44]byte  = [unsafe.Sizeof(v4l2Frmsizeenum{})]byte{}
	_ [68]byte  = [unsafe.Sizeof(v4l2Queryctrl{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(v4l2Control{})]byte{}
)

// IOCTL constants.
const (
	vidiocQuerycap       = 0x80685600
	vidiocEnumFmt        = 0xc0405602
	vidiocGCtrl          = 0xc008561b
	vidiocSCtrl          = 0xc008561c
	vidiocQueryctrl      = 0xc0445624
	vidiocEnumFramesizes = 0xc02c564a
)

// v4l2Capability has size 104 bytes.
type v4l2Capability struct {
	driver       [16]byte  // offset 0
	card         [32]byte  // offset 16
	busInfo      [32]byte  // offset 48
	version      uint32    // offset 80
	capabilities uint32    // offset 84
	deviceCaps   uint32    // offset 88
	reserved     [3]uint32 // offset 92
}

// v4l2Fmtdesc has size 64 bytes.
type v4l2Fmtdesc struct {
	index       uint32    // offset 0
	typ         uint32    // offset 4
	flags       uint32    // offset 8
	description [32]byte  // offset 12
	pixelformat uint32    // offset 44
	mbusCode    uint32    // offset 48
	reserved    [3]uint32 // offset 52
}

// v4l2FrmsizeDiscrete has size 8 bytes.
type v4l2FrmsizeDiscrete struct {
	width  uint32
	height uint32
}

// v4l2FrmsizeStepwise has size 24 bytes.
type v4l2FrmsizeStepwise struct {
	minWidth   uint32
	maxWidth   uint32
	stepWidth  uint32
	minHeight  uint32
	maxHeight  uint32
	stepHeight uint32
}

// v4l2Frmsizeenum has size 44 bytes.
type v4l2Frmsizeenum struct {
	index       uint32              // offset 0
	pixelFormat uint32              // offset 4
	typ         uint32              // offset 8
	discrete    v4l2FrmsizeDiscrete // offset 12 (union with stepwise)
	_           [16]byte            // padding for stepwise
	reserved    [2]uint32           // offset 36
}

// v4l2Queryctrl has size 68 bytes.
type v4l2Queryctrl struct {
	id           uint32    // offset 0
	typ          uint32    // offset 4
	name         [32]byte  // offset 8
	minimum      int32     // offset 40
	maximum      int32     // offset 44
	step         int32     // offset 48
	defaultValue int32     // offset 52
	flags        uint32    // offset 56
	reserved     [2]uint32 // offset 60
}

// v4l2Control has size 8 bytes.
type v4l2Control struct {
	id    uint32
	value int32
}
