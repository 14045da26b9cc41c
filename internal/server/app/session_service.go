package app

import (
	"context"
	"sort"
	"sync"

	"fidelity/internal/logging"
	"fidelity/internal/pipeline"
)

// SessionService runs the conversational variant: one product evaluated per
// turn, with a rolling accumulator of completed runs per session. Sessions
// live in memory only and vanish on restart.
type SessionService struct {
	controller *pipeline.Controller
	logger     logging.Logger

	mu       sync.Mutex
	sessions map[string][]*pipeline.ProductRun
}

// NewSessionService creates the service over a shared loop controller.
func NewSessionService(controller *pipeline.Controller) *SessionService {
	return &SessionService{
		controller: controller,
		logger:     logging.NewComponentLogger("session-service"),
		sessions:   map[string][]*pipeline.ProductRun{},
	}
}

// TurnRequest is one conversational evaluation turn.
type TurnRequest struct {
	SessionID     string   `json:"session_id"`
	SKU           string   `json:"sku,omitempty"`
	ReferenceURIs []string `json:"reference_uris"`
	// Description, when set, is used as ground truth and skips the
	// describing stage.
	Description string `json:"description,omitempty"`
}

// EvaluateTurn runs one product synchronously and folds it into the
// session's rolling results. The returned session slice is sorted ascending
// by final score, worst first, matching the batch ordering.
func (s *SessionService) EvaluateTurn(ctx context.Context, req TurnRequest) (*pipeline.ProductRun, []*pipeline.ProductRun, error) {
	if len(req.ReferenceURIs) == 0 {
		return nil, nil, ErrNoInputs
	}

	sku := req.SKU
	if sku == "" {
		sku = pipeline.ProductsFromURIs(req.ReferenceURIs[:1])[0].SKU
	}

	run := s.controller.Run(ctx, sku, req.ReferenceURIs, req.Description)

	s.mu.Lock()
	s.sessions[req.SessionID] = append(s.sessions[req.SessionID], run)
	session := s.snapshotLocked(req.SessionID)
	s.mu.Unlock()

	s.logger.Info("Session %s turn for %s finished %s (%d run(s) accumulated)",
		req.SessionID, sku, run.State, len(session))
	return run, session, nil
}

// Session returns the rolling results for a session, worst first.
func (s *SessionService) Session(sessionID string) []*pipeline.ProductRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(sessionID)
}

// Reset discards a session's accumulated results.
func (s *SessionService) Reset(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

func (s *SessionService) snapshotLocked(sessionID string) []*pipeline.ProductRun {
	runs := s.sessions[sessionID]
	out := make([]*pipeline.ProductRun, len(runs))
	copy(out, runs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalScore() < out[j].FinalScore()
	})
	return out
}
