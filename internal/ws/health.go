package ws

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const serviceName = "investigator"

// Health is the body of GET /api/health.
type Health struct {
	Status         string  `json:"status"`
	Service        string  `json:"service"`
	Sessions       int     `json:"sessions"`
	Clients        int     `json:"clients"`
	Investigations int     `json:"investigations"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemPercent     float64 `json:"mem_percent"`
}

// HealthReporter assembles Health from the hub, the launcher and host
// statistics.
type HealthReporter struct {
	hub      *Hub
	launcher Launcher
	cpu      func(ctx context.Context) (float64, error)
	mem      func(ctx context.Context) (float64, error)
}

func NewHealthReporter(hub *Hub, launcher Launcher) *HealthReporter {
	return &HealthReporter{
		hub:      hub,
		launcher: launcher,
		cpu:      hostCPU,
		mem:      hostMem,
	}
}

// Report never fails; host statistics that cannot be read are left at
// zero.
func (h *HealthReporter) Report(ctx context.Context) Health {
	out := Health{
		Status:   "healthy",
		Service:  serviceName,
		Sessions: h.hub.SessionCount(),
		Clients:  h.hub.ClientCount(),
	}
	if h.launcher != nil {
		out.Investigations = h.launcher.Active()
	}
	if v, err := h.cpu(ctx); err == nil {
		out.CPUPercent = v
	}
	if v, err := h.mem(ctx); err == nil {
		out.MemPercent = v
	}
	return out
}

func hostCPU(ctx context.Context) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(pct) == 0 {
		return 0, err
	}
	return pct[0], nil
}

func hostMem(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}
