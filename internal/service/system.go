package service

import (
	"sync/atomic"
	"time"

	"github.com/juniorsir/stream-dl/internal/config"
)

// SystemInfo describes the running build.
type SystemInfo struct {
	Version       string    `json:"version"`
	GitCommit     string    `json:"git_commit"`
	BuildTime     string    `json:"build_time"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

type SystemService interface {
	GetSystemInfo() SystemInfo
	GetRuntimeConfig() *config.RuntimeConfig
}

// MemorySystemService reports fixed build info and the live runtime config.
type MemorySystemService struct {
	info       SystemInfo
	runtimeCfg *atomic.Pointer[config.RuntimeConfig]
	now        func() time.Time
}

func NewMemorySystemService(info SystemInfo, runtimeCfg *atomic.Pointer[config.RuntimeConfig]) *MemorySystemService {
	return &MemorySystemService{info: info, runtimeCfg: runtimeCfg, now: time.Now}
}

func (s *MemorySystemService) GetSystemInfo() SystemInfo {
	info := s.info
	if !info.StartedAt.IsZero() {
		info.UptimeSeconds = int64(s.now().Sub(info.StartedAt) / time.Second)
	}
	return info
}

// GetRuntimeConfig returns the current snapshot; callers must not mutate it.
func (s *MemorySystemService) GetRuntimeConfig() *config.RuntimeConfig {
	if s.runtimeCfg == nil {
		return nil
	}
	return s.runtimeCfg.Load()
}
