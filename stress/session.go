package stress

import (
	"go.uber.org/zap"
)

// StartRequest asks a Session to start CPU and/or RAM stress. Threads <= 0
// disables CPU stress; RAMMegabytes <= 0 disables RAM stress.
type StartRequest struct {
	Threads      int  `json:"threads"`
	Mode         Mode `json:"mode"`
	RAMMegabytes int  `json:"ramMB"`
}

// StartResult is the reply to Session.Start.
type StartResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	CPUEnabled     bool   `json:"cpuEnabled"`
	RAMAllocatedMB int    `json:"ramAllocatedMB"`
}

// StopResult is the reply to Session.Stop.
type StopResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	RAMAllocatedMB int    `json:"ramAllocatedMB"`
}

// PauseResult is the reply to Session.TogglePause.
type PauseResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Paused  bool   `json:"isPaused"`
}

// Status is a snapshot of both engines.
type Status struct {
	Running        bool `json:"isRunning"`
	Paused         bool `json:"isPaused"`
	ThreadCount    int  `json:"threadCount"`
	RAMAllocatedMB int  `json:"ramAllocatedMB"`
}

// Session drives a CPUEngine and a RAMEngine together with request/reply
// semantics suited to a UI host: every call returns a result, never an
// error.
type Session struct {
	cpu    *CPUEngine
	ram    *RAMEngine
	logger *zap.Logger
}

// NewSession combines the two engines. A nil logger means no logging.
func NewSession(cpu *CPUEngine, ram *RAMEngine, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{cpu: cpu, ram: ram, logger: logger}
}

// Start allocates RAM first, then starts CPU workers. A CPU start failure
// releases the RAM again so the session is left idle.
func (s *Session) Start(req StartRequest) StartResult {
	if s.cpu.Running() || s.ram.Running() {
		return StartResult{
			Message:        "Stress test is already running.",
			CPUEnabled:     s.cpu.Running(),
			RAMAllocatedMB: s.ram.AllocatedMegabytes(),
		}
	}

	// Drop leftovers of a faulted RAM loop before allocating again.
	s.ram.Release()

	alloc, ramErr := s.ram.Allocate(req.RAMMegabytes)
	ramOK := ramErr == nil
	if ramErr != nil {
		s.logger.Warn("ram stress not started", zap.Error(ramErr))
	}

	if req.Threads <= 0 && (req.RAMMegabytes <= 0 || !ramOK) {
		s.ram.Release()
		return StartResult{Message: "CPU and RAM stress are disabled."}
	}

	if !ramOK {
		return StartResult{
			Message:        alloc.Message,
			CPUEnabled:     req.Threads > 0,
			RAMAllocatedMB: s.ram.AllocatedMegabytes(),
		}
	}

	if req.Threads <= 0 {
		return StartResult{
			Success:        true,
			Message:        "CPU stress disabled. " + alloc.Message,
			RAMAllocatedMB: s.ram.AllocatedMegabytes(),
		}
	}

	if err := s.cpu.Start(req.Threads, req.Mode); err != nil {
		s.logger.Error("cpu stress not started", zap.Error(err))
		s.ram.Release()
		return StartResult{
			Message:        "Failed to start CPU stress.",
			RAMAllocatedMB: s.ram.AllocatedMegabytes(),
		}
	}

	return StartResult{
		Success:        true,
		Message:        "Stress test started. " + alloc.Message,
		CPUEnabled:     true,
		RAMAllocatedMB: s.ram.AllocatedMegabytes(),
	}
}

// Stop stops CPU workers and releases RAM. It always succeeds.
func (s *Session) Stop() StopResult {
	s.cpu.Stop()
	s.ram.Release()

	return StopResult{
		Success:        true,
		Message:        "Stress test stopped. RAM stress cleared.",
		RAMAllocatedMB: s.ram.AllocatedMegabytes(),
	}
}

// TogglePause pauses a running CPU session or resumes a paused one. RAM
// verification is not affected.
func (s *Session) TogglePause() PauseResult {
	if !s.cpu.Running() {
		return PauseResult{Message: "CPU stress is disabled.", Paused: s.cpu.Paused()}
	}

	if s.cpu.Paused() {
		if err := s.cpu.Resume(); err != nil {
			return PauseResult{Message: "Failed to resume", Paused: true}
		}
		return PauseResult{Success: true, Message: "Resumed"}
	}

	if err := s.cpu.Pause(); err != nil {
		return PauseResult{Message: "Failed to pause"}
	}
	return PauseResult{Success: true, Message: "Paused", Paused: true}
}

// Status reports the live state of both engines.
func (s *Session) Status() Status {
	return Status{
		Running:        s.cpu.Running() || s.ram.Running(),
		Paused:         s.cpu.Paused(),
		ThreadCount:    s.cpu.ActiveThreadCount(),
		RAMAllocatedMB: s.ram.AllocatedMegabytes(),
	}
}
