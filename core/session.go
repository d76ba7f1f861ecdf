package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrUnknownModel reports a model alias with no entry in the model table.
var ErrUnknownModel = errors.New("unknown model alias")

type sessionState int

const (
	stateNoAgent sessionState = iota
	stateLoading
	stateReady
)

// ChatSession is the per-chat conversation state: the selected model alias and
// the lazily created agent handle. The agent handle is exclusively owned by
// the session; callers must go through the store to mutate it.
type ChatSession struct {
	chatID int64

	// mu serializes every session-mutating operation, including agent
	// construction. Two rapid messages from the same chat both reaching
	// GetOrCreate therefore construct exactly one agent: the second caller
	// blocks and then observes the first caller's handle.
	mu    sync.Mutex
	alias string
	state sessionState
	agent Agent
}

// SessionStore maps chat IDs to their sessions. It is the only shared mutable
// state in the core and is safe for concurrent use.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*ChatSession

	defaultAlias string
	models       map[string]string // alias -> backing model ID
	build        AgentBuilder
}

func NewSessionStore(models map[string]string, defaultAlias string, build AgentBuilder) *SessionStore {
	return &SessionStore{
		sessions:     make(map[int64]*ChatSession),
		defaultAlias: defaultAlias,
		models:       models,
		build:        build,
	}
}

func (s *SessionStore) session(chatID int64) *ChatSession {
	s.mu.RLock()
	cs, ok := s.sessions[chatID]
	s.mu.RUnlock()
	if ok {
		return cs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.sessions[chatID]; ok {
		return cs
	}
	cs = &ChatSession{chatID: chatID, alias: s.defaultAlias}
	s.sessions[chatID] = cs
	return cs
}

// GetOrCreate returns the chat's agent handle, constructing one if absent.
// onLoading fires with the active alias only when a construction actually
// happens. Construction failure leaves the session at NoAgent; the caller
// surfaces the error to the user.
func (s *SessionStore) GetOrCreate(ctx context.Context, chatID int64, onLoading func(alias string)) (Agent, error) {
	cs := s.session(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.state == stateReady && cs.agent != nil {
		return cs.agent, nil
	}

	modelID, ok := s.models[cs.alias]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, cs.alias)
	}

	cs.state = stateLoading
	if onLoading != nil {
		onLoading(cs.alias)
	}

	agent, err := s.build(ctx, modelID)
	if err != nil {
		cs.state = stateNoAgent
		cs.agent = nil
		return nil, fmt.Errorf("create %s agent: %w", cs.alias, err)
	}

	cs.agent = agent
	cs.state = stateReady
	slog.Info("agent created", "chat", chatID, "alias", cs.alias, "model", modelID)
	return agent, nil
}

// Reset drops the chat's agent handle. Idempotent; returns whether a handle
// was actually dropped.
func (s *SessionStore) Reset(chatID int64) bool {
	cs := s.session(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	had := cs.agent != nil
	if had {
		if err := cs.agent.Close(); err != nil {
			slog.Warn("agent close failed", "chat", chatID, "error", err)
		}
	}
	cs.agent = nil
	cs.state = stateNoAgent
	return had
}

// SwitchModel records the desired alias and drops any existing handle, forcing
// recreation on the next turn. Returns the backing model ID.
func (s *SessionStore) SwitchModel(chatID int64, alias string) (string, error) {
	modelID, ok := s.models[alias]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, alias)
	}

	cs := s.session(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.agent != nil {
		if err := cs.agent.Close(); err != nil {
			slog.Warn("agent close failed", "chat", chatID, "error", err)
		}
	}
	cs.agent = nil
	cs.state = stateNoAgent
	cs.alias = alias
	slog.Info("model switched", "chat", chatID, "alias", alias, "model", modelID)
	return modelID, nil
}

// Alias returns the chat's selected model alias (the default if the chat has
// no session yet).
func (s *SessionStore) Alias(chatID int64) string {
	s.mu.RLock()
	cs, ok := s.sessions[chatID]
	s.mu.RUnlock()
	if !ok {
		return s.defaultAlias
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.alias
}

// Status reports the chat's session snapshot for /status.
func (s *SessionStore) Status(chatID int64) SessionStatus {
	s.mu.RLock()
	cs, ok := s.sessions[chatID]
	s.mu.RUnlock()
	if !ok {
		return SessionStatus{Alias: s.defaultAlias}
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	st := SessionStatus{Alias: cs.alias, Initialized: cs.agent != nil}
	if cs.agent != nil {
		st.History = cs.agent.HistoryLength()
		st.Tokens = cs.agent.EstimateTokens()
	}
	return st
}

// TrimHistory keeps the last keep entries of the chat's agent history.
func (s *SessionStore) TrimHistory(chatID int64, keep int) (before, after int, err error) {
	s.mu.RLock()
	cs, ok := s.sessions[chatID]
	s.mu.RUnlock()
	if !ok {
		return 0, 0, errors.New("agent not initialized")
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.agent == nil {
		return 0, 0, errors.New("agent not initialized")
	}
	before = cs.agent.HistoryLength()
	after = cs.agent.TrimHistory(keep)
	return before, after, nil
}

// Aliases returns the supported model aliases in sorted order.
func (s *SessionStore) Aliases() []string {
	out := make([]string, 0, len(s.models))
	for a := range s.models {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// ModelID resolves an alias against the model table.
func (s *SessionStore) ModelID(alias string) (string, bool) {
	id, ok := s.models[alias]
	return id, ok
}
