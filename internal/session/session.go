// Package session keeps the bounded trailing conversation of one user
// session. The orchestrator owns the state and passes it by reference
// into context assembly; the core loop never stores it.
package session

import (
	"fmt"
	"sync"
)

// Turn is one completed question/answer exchange.
type Turn struct {
	Question      string `json:"question"`
	SQL           string `json:"sql"`
	ResultSummary string `json:"result_summary"`
}

// State holds at most maxTurns trailing turns.
type State struct {
	mu       sync.Mutex
	maxTurns int
	turns    []Turn
}

func NewState(maxTurns int) *State {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &State{maxTurns: maxTurns}
}

func (s *State) Append(turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	if len(s.turns) > s.maxTurns {
		s.turns = s.turns[len(s.turns)-s.maxTurns:]
	}
}

// Tail returns up to n most recent turns, oldest first.
func (s *State) Tail(n int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.turns) {
		n = len(s.turns)
	}
	out := make([]Turn, n)
	copy(out, s.turns[len(s.turns)-n:])
	return out
}

func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Store is an in-memory session registry keyed by session ID.
type Store struct {
	mu       sync.Mutex
	maxTurns int
	sessions map[string]*State
}

func NewStore(maxTurns int) *Store {
	return &Store{maxTurns: maxTurns, sessions: map[string]*State{}}
}

func (st *Store) GetOrCreate(id string) *State {
	st.mu.Lock()
	defer st.mu.Unlock()
	state, ok := st.sessions[id]
	if !ok {
		state = NewState(st.maxTurns)
		st.sessions[id] = state
	}
	return state
}

func (st *Store) Get(id string) (*State, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	state, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q not found", id)
	}
	return state, nil
}
