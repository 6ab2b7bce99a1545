package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/handywriterz/handywriterz/internal/agent/telemetry"
)

// SwarmCoordinator fans a state snapshot out to a fixed roster of member
// agents concurrently and merges every outcome, successes and failures
// alike. The coordinator itself never fails: a member error becomes an error
// descriptor in the merged result.
type SwarmCoordinator struct {
	name          string
	roster        []SwarmAgent
	memberTimeout time.Duration
	tele          *telemetry.Telemetry
	logger        *log.Logger
}

func NewSwarmCoordinator(name string, roster []SwarmAgent, memberTimeout time.Duration, tele *telemetry.Telemetry) *SwarmCoordinator {
	if memberTimeout <= 0 {
		memberTimeout = 90 * time.Second
	}
	return &SwarmCoordinator{
		name:          name,
		roster:        roster,
		memberTimeout: memberTimeout,
		tele:          tele,
		logger:        log.New(log.Writer(), "[SWARM:"+name+"] ", log.LstdFlags),
	}
}

// Name returns the swarm's name (research, qa, writing).
func (c *SwarmCoordinator) Name() string { return c.name }

// Execute runs every member against a shared snapshot and returns the merged
// result. Members observe no relative ordering; each gets its own deadline.
func (c *SwarmCoordinator) Execute(ctx context.Context, state *WorkflowState) SwarmResult {
	result := make(SwarmResult, len(c.roster))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, member := range c.roster {
		wg.Add(1)
		go func(m SwarmAgent) {
			defer wg.Done()
			outcome := c.runMember(ctx, m, state)
			mu.Lock()
			result[m.Name()] = outcome
			mu.Unlock()
		}(member)
	}
	wg.Wait()

	failures := 0
	for _, oc := range result {
		if oc.Error != "" {
			failures++
		}
	}
	if failures > 0 {
		c.logger.Printf("%d/%d members failed; continuing with partial results", failures, len(c.roster))
	}
	return result
}

func (c *SwarmCoordinator) runMember(ctx context.Context, m SwarmAgent, state *WorkflowState) SwarmOutcome {
	mctx, cancel := context.WithTimeout(ctx, c.memberTimeout)
	defer cancel()

	start := time.Now()
	data, err := func() (data map[string]string, err error) {
		// A panicking member must not take the batch down with it.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return m.Run(mctx, state.Clone())
	}()

	c.tele.RecordAgentEvent(telemetry.AgentEvent{
		Agent:    m.Name(),
		Duration: time.Since(start),
		Success:  err == nil,
		Error:    errString(err),
	})
	if err != nil {
		c.tele.RecordSwarmMemberError(c.name, m.Name())
		return SwarmOutcome{Error: err.Error()}
	}
	return SwarmOutcome{Data: data}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Notes flattens a swarm result's successful contributions into prompt-ready
// lines, skipping error entries.
func (r SwarmResult) Notes() []string {
	var notes []string
	for agent, oc := range r {
		if oc.Error != "" {
			continue
		}
		for field, text := range oc.Data {
			if text == "" {
				continue
			}
			notes = append(notes, fmt.Sprintf("[%s/%s] %s", agent, field, text))
		}
	}
	return notes
}

// AllFailed reports whether every member of the batch raised.
func (r SwarmResult) AllFailed() bool {
	if len(r) == 0 {
		return false
	}
	for _, oc := range r {
		if oc.Error == "" {
			return false
		}
	}
	return true
}
