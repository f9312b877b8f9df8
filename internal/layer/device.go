package layer

import (
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// Device describes the host the layers run on.
// All kernels run on the CPU through gonum; the description is informational.
type Device struct {
	Brand         string
	PhysicalCores int
	LogicalCores  int
	AVX2          bool
	FMA           bool
	GOMAXPROCS    int
}

// HostDevice inspects the current CPU.
func HostDevice() Device {
	return Device{
		Brand:         cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		AVX2:          cpuid.CPU.Supports(cpuid.AVX2),
		FMA:           cpuid.CPU.Supports(cpuid.FMA3),
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
	}
}

func (d Device) String() string {
	brand := d.Brand
	if brand == "" {
		brand = runtime.GOARCH
	}
	return fmt.Sprintf("%s (%d cores, %d threads, avx2=%t, fma=%t)", brand, d.PhysicalCores, d.LogicalCores, d.AVX2, d.FMA)
}
