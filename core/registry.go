package core

import (
	"context"
	"fmt"
)

// AgentBuilder constructs one agent instance bound to a backing model ID.
// Construction is expensive and fallible; the session store calls it lazily.
type AgentBuilder func(ctx context.Context, modelID string) (Agent, error)

// AgentFactory creates an AgentBuilder from config options.
type AgentFactory func(opts map[string]any) (AgentBuilder, error)

var agentFactories = make(map[string]AgentFactory)

func RegisterAgent(name string, factory AgentFactory) {
	agentFactories[name] = factory
}

func CreateAgentBuilder(name string, opts map[string]any) (AgentBuilder, error) {
	f, ok := agentFactories[name]
	if !ok {
		available := make([]string, 0, len(agentFactories))
		for k := range agentFactories {
			available = append(available, k)
		}
		return nil, fmt.Errorf("unknown agent %q, available: %v", name, available)
	}
	return f(opts)
}
