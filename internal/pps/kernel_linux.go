//go:build linux

package pps

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Kernel PPS mode bits from <linux/pps.h>. x/sys exposes the ioctl request
// numbers and structs but not these.
const (
	ppsCaptureAssert = 0x01
	ppsCaptureClear  = 0x02
	ppsTsfmtTspec    = 0x1000
)

// KernelSource times pulses with the kernel PPS subsystem (/dev/ppsN,
// RFC 2783 semantics). Sequence numbers and timestamps come straight from
// the capture registers, so Fetch never waits for an edge: the fetch
// timeout is left zero and the ioctl returns the current state.
type KernelSource struct {
	f    *os.File
	caps int32
}

// OpenKernel opens a kernel PPS device and verifies it can capture at all.
func OpenKernel(device string) (*KernelSource, error) {
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("pps: open: %w", err)
	}
	k := &KernelSource{f: f}
	if err := k.ioctl(unix.PPS_GETCAP, unsafe.Pointer(&k.caps)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("pps: getcap %s: %w", device, err)
	}
	if k.caps&(ppsCaptureAssert|ppsCaptureClear) == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("pps: %s cannot capture edges (caps %#x)", device, k.caps)
	}
	return k, nil
}

func (k *KernelSource) ioctl(req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, k.f.Fd(), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (k *KernelSource) SelectEdge(mode EdgeMode) error {
	want := int32(ppsCaptureAssert)
	if mode == CaptureClear {
		want = ppsCaptureClear
	}
	if k.caps&want == 0 {
		return fmt.Errorf("pps: device cannot capture %s edge (caps %#x)", mode, k.caps)
	}

	var p unix.PPSKParams
	if err := k.ioctl(unix.PPS_GETPARAMS, unsafe.Pointer(&p)); err != nil {
		return fmt.Errorf("pps: getparams: %w", err)
	}
	p.Mode = want | ppsTsfmtTspec
	if err := k.ioctl(unix.PPS_SETPARAMS, unsafe.Pointer(&p)); err != nil {
		return fmt.Errorf("pps: setparams: %w", err)
	}
	return nil
}

func (k *KernelSource) Fetch() (State, error) {
	var fd unix.PPSFData
	if err := k.ioctl(unix.PPS_FETCH, unsafe.Pointer(&fd)); err != nil {
		return State{}, fmt.Errorf("pps: fetch: %w", err)
	}
	return State{
		AssertSeq:  uint64(fd.Info.Assert_sequence),
		AssertSec:  fd.Info.Assert_tu.Sec,
		AssertNsec: int64(fd.Info.Assert_tu.Nsec),
		ClearSeq:   uint64(fd.Info.Clear_sequence),
		ClearSec:   fd.Info.Clear_tu.Sec,
		ClearNsec:  int64(fd.Info.Clear_tu.Nsec),
	}, nil
}

func (k *KernelSource) Close() error {
	return k.f.Close()
}
