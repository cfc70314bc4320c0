// Package session manages per-form compiled engines and per-session form
// state. An engine is compiled once per form and shared read-only across
// sessions; each session owns its FormState and is never shared with
// another session.
package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mbaylor/formrules/internal/metrics"
	"github.com/mbaylor/formrules/rules"
)

// Session is one user's live form: the state the rule engine reads and
// writes for that user, plus the engine compiled for the form.
type Session struct {
	ID        string
	FormID    string
	State     *rules.FormState
	CreatedAt time.Time

	engine *rules.Engine
	mu     sync.Mutex
}

// MarshalState renders the session state as JSON while no pass is running
// on it. Callers that hand the state to an encoder outside the session lock
// must use this instead of reading State directly, or a concurrent pass can
// mutate the maps mid-encode.
func (s *Session) MarshalState() (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(s.State)
}

// Manager owns the engines and sessions for all forms in the process.
type Manager struct {
	store   rules.RuleSetStore
	cache   rules.RuleSetCache
	cfg     rules.Config
	metrics *metrics.Collector

	mu       sync.RWMutex
	engines  map[string]*rules.Engine // formID -> compiled engine
	sessions map[string]*Session
}

// NewManager creates a manager over a rule set store.
func NewManager(store rules.RuleSetStore, cfg rules.Config, collector *metrics.Collector) *Manager {
	return &Manager{
		store:    store,
		cache:    rules.NewInMemoryRuleSetCache(rules.DefaultCacheConfig()),
		cfg:      cfg,
		metrics:  collector,
		engines:  make(map[string]*rules.Engine),
		sessions: make(map[string]*Session),
	}
}

// LoadAllForms compiles engines for every active rule set up front so the
// first session on each form does not pay the compile cost.
func (m *Manager) LoadAllForms() error {
	sets, err := m.store.ListActive()
	if err != nil {
		return fmt.Errorf("list active rule sets: %w", err)
	}
	m.cache.Set(sets)

	for _, rs := range sets {
		if _, err := m.compileForm(rs); err != nil {
			return fmt.Errorf("compile rules for form %s: %w", rs.FormID, err)
		}
	}
	return nil
}

// ListForms returns the form ids with a compiled engine.
func (m *Manager) ListForms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	forms := make([]string, 0, len(m.engines))
	for id := range m.engines {
		forms = append(forms, id)
	}
	return forms
}

// Engine returns the compiled engine for a form, compiling it on first use.
func (m *Manager) Engine(formID string) (*rules.Engine, error) {
	m.mu.RLock()
	en, ok := m.engines[formID]
	m.mu.RUnlock()
	if ok {
		return en, nil
	}

	rs := m.cache.GetForm(formID)
	if rs == nil {
		var err error
		rs, err = m.store.GetActiveByForm(formID)
		if err != nil {
			return nil, err
		}
	}
	return m.compileForm(rs)
}

// ReloadForm replaces a form's engine from a new rule document. Existing
// sessions pick up the new rules on their next field-change event; their
// accumulated state is kept.
func (m *Manager) ReloadForm(formID string, document []byte) error {
	loaded, err := rules.LoadRules(document)
	if err != nil {
		return err
	}
	en, err := rules.NewEngineWithConfig(loaded, m.cfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.engines[formID] = en
	var live []*Session
	for _, s := range m.sessions {
		if s.FormID == formID {
			live = append(live, s)
		}
	}
	m.mu.Unlock()

	// A session's engine is only read under its own lock (see runPass);
	// the swap takes the same lock so a reload never races an in-flight
	// pass.
	for _, s := range live {
		s.mu.Lock()
		s.engine = en
		s.mu.Unlock()
	}

	m.cache.Invalidate()
	return nil
}

func (m *Manager) compileForm(rs *rules.RuleSet) (*rules.Engine, error) {
	loaded, err := rules.LoadRules(rs.Document)
	if err != nil {
		return nil, err
	}
	en, err := rules.NewEngineWithConfig(loaded, m.cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.engines[rs.FormID] = en
	m.mu.Unlock()
	return en, nil
}

// CreateSession opens a session for a form and runs the initial evaluation
// pass over the seed values, so rules that should hold on first render
// (such as unconditional required flags) are already in the derived state.
func (m *Manager) CreateSession(formID string, initialValues map[string]any) (*Session, *rules.PassResult, error) {
	en, err := m.Engine(formID)
	if err != nil {
		return nil, nil, err
	}

	s := &Session{
		ID:        uuid.NewString(),
		FormID:    formID,
		State:     rules.NewFormState(initialValues),
		CreatedAt: time.Now(),
		engine:    en,
	}

	result := m.runPass(s, func() *rules.PassResult {
		return s.engine.EvaluatePass(s.State)
	})

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionOpened()
	}
	return s, result, nil
}

// Session returns a live session by id.
func (m *Manager) Session(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return s, nil
}

// ApplyFieldChange records a field-change event on a session and runs an
// evaluation pass. Passes on one session are serialized; a new event does
// not interrupt an in-flight pass, it waits for it.
func (m *Manager) ApplyFieldChange(sessionID, path string, value any) (*rules.PassResult, error) {
	s, err := m.Session(sessionID)
	if err != nil {
		return nil, err
	}

	return m.runPass(s, func() *rules.PassResult {
		return s.engine.OnFieldChange(s.State, path, value)
	}), nil
}

// EndSession discards a session and its state.
func (m *Manager) EndSession(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	if m.metrics != nil {
		m.metrics.SessionClosed()
	}
	return nil
}

func (m *Manager) runPass(s *Session, pass func() *rules.PassResult) *rules.PassResult {
	s.mu.Lock()
	start := time.Now()
	result := pass()
	elapsed := time.Since(start)
	s.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ObservePass(s.FormID, len(result.Fired), result.Cycle != nil, elapsed)
	}
	return result
}
