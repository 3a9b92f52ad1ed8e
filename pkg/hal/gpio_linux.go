//go:build linux

package hal

import (
	"fmt"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux GPIO character device (uapi v2) backend. Lines are requested one at
// a time from /dev/gpiochipN and driven through GPIO_V2_LINE_SET_VALUES /
// GPIO_V2_LINE_GET_VALUES ioctls.

const (
	gpioV2LinesMax        = 64
	gpioV2LineNumAttrsMax = 10

	gpioV2LineFlagActiveLow    = 1 << 1
	gpioV2LineFlagInput        = 1 << 2
	gpioV2LineFlagOutput       = 1 << 3
	gpioV2LineFlagBiasPullUp   = 1 << 8
	gpioV2LineFlagBiasPullDown = 1 << 9

	gpioV2GetLineIoctl       = 0xc250b407
	gpioV2LineGetValuesIoctl = 0xc010b40e
	gpioV2LineSetValuesIoctl = 0xc010b40f
)

type gpioV2LineAttribute struct {
	ID      uint32
	Padding uint32
	Value   uint64
}

type gpioV2LineConfigAttribute struct {
	Attr gpioV2LineAttribute
	Mask uint64
}

type gpioV2LineConfig struct {
	Flags    uint64
	NumAttrs uint32
	Padding  [5]uint32
	Attrs    [gpioV2LineNumAttrsMax]gpioV2LineConfigAttribute
}

type gpioV2LineRequest struct {
	Offsets         [gpioV2LinesMax]uint32
	Consumer        [32]byte
	Config          gpioV2LineConfig
	NumLines        uint32
	EventBufferSize uint32
	Padding         [5]uint32
	Fd              int32
}

type gpioV2LineValues struct {
	Bits uint64
	Mask uint64
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// LineRequest describes how a single GPIO line should be requested.
type LineRequest struct {
	Offset    uint32
	Output    bool
	ActiveLow bool
	PullUp    bool
	PullDown  bool
	Initial   bool // initial level for outputs
}

// Chip is an open GPIO character device.
type Chip struct {
	fd   int
	path string
}

// OpenChip opens a GPIO character device such as /dev/gpiochip0.
func OpenChip(path string) (*Chip, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("gpio: unable to open %s: %w", path, err)
	}
	return &Chip{fd: fd, path: path}, nil
}

// Close closes the chip device. Lines already requested stay usable.
func (c *Chip) Close() error {
	return unix.Close(c.fd)
}

// RequestLine requests a single line from the chip for input or output.
func (c *Chip) RequestLine(req LineRequest, consumer string) (*Line, error) {
	var lr gpioV2LineRequest
	lr.Offsets[0] = req.Offset
	lr.NumLines = 1
	copy(lr.Consumer[:len(lr.Consumer)-1], consumer)

	if req.Output {
		lr.Config.Flags = gpioV2LineFlagOutput
	} else {
		lr.Config.Flags = gpioV2LineFlagInput
	}
	if req.ActiveLow {
		lr.Config.Flags |= gpioV2LineFlagActiveLow
	}
	if req.PullUp {
		lr.Config.Flags |= gpioV2LineFlagBiasPullUp
	} else if req.PullDown {
		lr.Config.Flags |= gpioV2LineFlagBiasPullDown
	}

	if err := ioctl(c.fd, gpioV2GetLineIoctl, unsafe.Pointer(&lr)); err != nil {
		return nil, fmt.Errorf("gpio: line %d request on %s: %w", req.Offset, c.path, err)
	}

	l := &Line{fd: int(lr.Fd), offset: req.Offset}
	if req.Output {
		l.Set(req.Initial)
	}
	return l, nil
}

// Line is a requested GPIO line. It implements both OutputPin and InputPin;
// the kernel enforces the direction it was requested with.
type Line struct {
	fd      int
	offset  uint32
	lastErr error
}

func (l *Line) Set(high bool) {
	v := gpioV2LineValues{Mask: 1}
	if high {
		v.Bits = 1
	}
	l.lastErr = ioctl(l.fd, gpioV2LineSetValuesIoctl, unsafe.Pointer(&v))
}

func (l *Line) Get() bool {
	v := gpioV2LineValues{Mask: 1}
	l.lastErr = ioctl(l.fd, gpioV2LineGetValuesIoctl, unsafe.Pointer(&v))
	return v.Bits&1 != 0
}

// Err returns the error from the most recent Set or Get, if any.
func (l *Line) Err() error {
	return l.lastErr
}

// Close releases the line back to the kernel.
func (l *Line) Close() error {
	return unix.Close(l.fd)
}

// LineOffset parses a pin name like "gpio21" or "21" into a line offset.
func LineOffset(name string) (uint32, error) {
	s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "gpio")
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("gpio: invalid pin name %q", name)
	}
	return uint32(n), nil
}
