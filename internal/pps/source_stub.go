//go:build !linux

package pps

import "fmt"

// Stub sources for non-Linux platforms, mirroring the Linux constructors.
// Open always fails, so the methods are never reached.

type KernelSource struct{}

func OpenKernel(device string) (*KernelSource, error) {
	return nil, fmt.Errorf("pps: kernel pps not supported on this platform")
}

func (*KernelSource) SelectEdge(EdgeMode) error { return fmt.Errorf("pps: not supported") }
func (*KernelSource) Fetch() (State, error)     { return State{}, fmt.Errorf("pps: not supported") }
func (*KernelSource) Close() error              { return nil }

type GPIOSource struct{}

func OpenGPIO(chip string, offset int) (*GPIOSource, error) {
	return nil, fmt.Errorf("pps: gpio pps not supported on this platform")
}

func (*GPIOSource) SelectEdge(EdgeMode) error { return fmt.Errorf("pps: not supported") }
func (*GPIOSource) Fetch() (State, error)     { return State{}, fmt.Errorf("pps: not supported") }
func (*GPIOSource) Close() error              { return nil }
