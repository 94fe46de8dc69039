package hooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/jobtrace/internal/unit"
)

// HookType represents the job engine lifecycle hooks.
type HookType string

const (
	// HookUnitStarting is called when a job or data flow is about to start
	HookUnitStarting HookType = "unit_starting"

	// HookUnitFinished is called when a job or data flow has finished
	HookUnitFinished HookType = "unit_finished"

	// HookSubUnitStarting is called before a step or action runs
	HookSubUnitStarting HookType = "sub_unit_starting"

	// HookSubUnitFinished is called after a step or action has run
	HookSubUnitFinished HookType = "sub_unit_finished"
)

// Config holds the binding configuration
type Config struct {
	// Project is attached as service.project to spans of units that do not
	// carry their own.
	Project string `json:"project"`

	// Environment is attached as service.environment, same rules as Project.
	Environment string `json:"environment"`

	// LoggingJobs names the jobs and data flows that run the engine's own
	// log shipping. They are never traced.
	LoggingJobs []string `json:"logging_jobs"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for i, name := range c.LoggingJobs {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("logging_jobs[%d] is empty", i)
		}
	}
	return nil
}

// IsLoggingJob reports whether name is listed in LoggingJobs.
func (c *Config) IsLoggingJob(name string) bool {
	if c == nil || name == "" {
		return false
	}
	for _, n := range c.LoggingJobs {
		if n == name {
			return true
		}
	}
	return false
}

// Event is passed to hook handlers. At is the engine's timestamp for the
// transition; Result is set for finished hooks.
type Event struct {
	Unit   unit.Unit
	Result unit.Result
	At     time.Time
}

// HookHandler is a function that handles a hook event
type HookHandler func(ctx context.Context, ev Event) error

// HookManager manages lifecycle hooks. Registration and dispatch are safe
// for concurrent use; parallel steps fire hooks from their own goroutines.
type HookManager struct {
	config *Config

	mu       sync.RWMutex
	handlers map[HookType][]HookHandler
}

// NewHookManager creates a new hook manager
func NewHookManager(config *Config) *HookManager {
	if config == nil {
		config = DefaultConfig()
	}
	return &HookManager{
		config:   config,
		handlers: make(map[HookType][]HookHandler),
	}
}

// RegisterHandler registers a handler for a hook type
func (h *HookManager) RegisterHandler(hookType HookType, handler HookHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[hookType] = append(h.handlers[hookType], handler)
}

// Execute executes all handlers for the given hook type in registration
// order and stops at the first error.
func (h *HookManager) Execute(ctx context.Context, hookType HookType, ev Event) error {
	h.mu.RLock()
	handlers := h.handlers[hookType]
	h.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, ev); err != nil {
			return fmt.Errorf("hook %s failed: %w", hookType, err)
		}
	}

	return nil
}

// Config returns the hook configuration
func (h *HookManager) Config() *Config {
	return h.config
}
