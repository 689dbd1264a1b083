// Package hardware probes the host for the facts the launch-config builder
// needs: GPU presence and VRAM, CPU core counts, and system memory.
package hardware

import (
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Info describes the detected hardware. A zero Info means "CPU only, unknown
// capacity" and is always safe to build launch flags from.
type Info struct {
	HasGPU         bool   `json:"has_gpu"`
	GPUName        string `json:"gpu_name,omitempty"`
	VRAMMB         int    `json:"vram_mb,omitempty"`
	LogicalCores   int    `json:"logical_cores"`
	PhysicalCores  int    `json:"physical_cores"`
	TotalRAMMB     int    `json:"total_ram_mb"`
	AvailableRAMMB int    `json:"available_ram_mb"`
}

// Detect probes the host. GPU detection is best effort: a missing nvidia-smi
// simply means CPU-only mode, never an error.
func Detect() Info {
	info := Info{LogicalCores: runtime.NumCPU()}

	if n, err := cpu.Counts(false); err == nil && n > 0 {
		info.PhysicalCores = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalRAMMB = int(vm.Total / (1024 * 1024))
		info.AvailableRAMMB = int(vm.Available / (1024 * 1024))
	}
	detectGPU(&info)
	return info
}

// detectGPU queries nvidia-smi for total VRAM and the device name.
func detectGPU(info *Info) {
	out, err := exec.Command("nvidia-smi", "--query-gpu=memory.total,name", "--format=csv,noheader,nounits").Output()
	if err != nil {
		// No NVIDIA GPU, or nvidia-smi not installed.
		return
	}
	// Output: "8192, NVIDIA GeForce RTX 3070" (one line per device; use the first)
	line := strings.TrimSpace(string(out))
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	parts := strings.SplitN(line, ",", 2)
	if len(parts) < 2 {
		return
	}
	vram, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || vram <= 0 {
		return
	}
	info.HasGPU = true
	info.VRAMMB = vram
	info.GPUName = strings.TrimSpace(parts[1])
}
