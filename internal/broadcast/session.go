package broadcast

import "sync"

// State is a step of the broadcast composition conversation
type State int

const (
	StateIdle State = iota
	StateAwaitingMessageText
	StateAwaitingPhoto
	StateAwaitingButtonText
	StateAwaitingButtonURL
)

// Draft accumulates the composed broadcast across conversation steps
type Draft struct {
	MessageText string `json:"message_text"`
	PhotoID     string `json:"photo_id,omitempty"`
	ButtonText  string `json:"button_text,omitempty"`
	ButtonURL   string `json:"button_url,omitempty"`
}

// HasButton reports whether both button fields were supplied
func (d *Draft) HasButton() bool {
	return d.ButtonText != "" && d.ButtonURL != ""
}

// Input is one inbound private message fed into a session
type Input struct {
	Text    string
	PhotoID string
}

type session struct {
	state State
	draft Draft
}

// Sessions holds per-operator conversation state. State lives in memory only;
// a restart drops any in-flight composition, and Begin overwrites whatever a
// prior incomplete session had collected.
type Sessions struct {
	mu         sync.Mutex
	byOperator map[int64]*session
}

// NewSessions creates an empty session store
func NewSessions() *Sessions {
	return &Sessions{byOperator: make(map[int64]*session)}
}

// Begin starts a fresh composition for the operator, discarding any prior
// incomplete session silently.
func (s *Sessions) Begin(operatorID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byOperator[operatorID] = &session{state: StateAwaitingMessageText}
}

// State returns the operator's current state, StateIdle when no session exists
func (s *Sessions) State(operatorID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byOperator[operatorID]
	if !ok {
		return StateIdle
	}
	return sess.state
}

// Advance feeds one inbound message into the operator's session and returns
// the state after the transition. When the final step completes, the finished
// draft is returned and the session resets to idle.
func (s *Sessions) Advance(operatorID int64, in Input) (State, *Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byOperator[operatorID]
	if !ok || sess.state == StateIdle {
		return StateIdle, nil
	}

	switch sess.state {
	case StateAwaitingMessageText:
		sess.draft.MessageText = in.Text
		sess.state = StateAwaitingPhoto

	case StateAwaitingPhoto:
		// A non-photo message skips the photo
		if in.PhotoID != "" {
			sess.draft.PhotoID = in.PhotoID
		}
		sess.state = StateAwaitingButtonText

	case StateAwaitingButtonText:
		sess.draft.ButtonText = in.Text
		sess.state = StateAwaitingButtonURL

	case StateAwaitingButtonURL:
		sess.draft.ButtonURL = in.Text
		done := sess.draft
		delete(s.byOperator, operatorID)
		return StateIdle, &done
	}

	return sess.state, nil
}
