package health

import (
	"context"
	"fmt"
	"os"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type CheckerRegistry struct {
	checkers []Checker
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make([]Checker, 0),
	}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, checker)
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult)
	allHealthy := true

	for _, checker := range r.checkers {
		err := checker.Check(ctx)
		result := CheckResult{
			Timestamp: time.Now(),
		}

		if err != nil {
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			allHealthy = false
		} else {
			result.Status = StatusHealthy
		}

		results[checker.Name()] = result
	}

	overallStatus := StatusHealthy
	if !allHealthy {
		overallStatus = StatusUnhealthy
	}

	return Health{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

// Pinger is implemented by the Miniflux client.
type Pinger interface {
	CheckConnection(ctx context.Context) error
}

type UpstreamChecker struct {
	client Pinger
}

func NewUpstreamChecker(client Pinger) *UpstreamChecker {
	return &UpstreamChecker{client: client}
}

func (c *UpstreamChecker) Name() string {
	return "miniflux"
}

func (c *UpstreamChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.CheckConnection(ctx); err != nil {
		return fmt.Errorf("miniflux ping failed: %w", err)
	}
	return nil
}

type RulesDirChecker struct {
	dir string
}

func NewRulesDirChecker(dir string) *RulesDirChecker {
	return &RulesDirChecker{dir: dir}
}

func (c *RulesDirChecker) Name() string {
	return "rules_dir"
}

func (c *RulesDirChecker) Check(ctx context.Context) error {
	info, err := os.Stat(c.dir)
	if err != nil {
		return fmt.Errorf("rules directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("rules path %s is not a directory", c.dir)
	}
	return nil
}
