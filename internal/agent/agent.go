package agent

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"cortexre/internal/config"
	"cortexre/internal/logging"
	"cortexre/internal/portfolio"
	"cortexre/internal/tools"
	"cortexre/internal/types"
)

// SessionStore persists conversation turns. Satisfied by session.Store;
// a nil store disables persistence.
type SessionStore interface {
	AppendTurn(ctx context.Context, threadID, query, answer string, blocked bool) error
}

// Response is the caller-facing outcome of one query.
type Response struct {
	ThreadID      string `json:"thread_id"`
	Answer        string `json:"answer"`
	Blocked       bool   `json:"blocked"`
	BlockReason   string `json:"block_reason,omitempty"`
	RevisionCount int    `json:"revision_count"`
	Steps         []Step `json:"intermediate_steps,omitempty"`
}

// AgentService is the entry point the server and CLI share. It owns the
// LLM stage clients and rebuilds the tool pipeline from the current
// dataset snapshot so hot reloads take effect on the next query.
type AgentService struct {
	cfg      *config.Config
	client   types.LLMClient
	store    *portfolio.Store
	sessions SessionStore
	stage    *StageLLM

	mu       sync.Mutex
	snapshot *portfolio.Dataset
	workflow *WorkflowEngine
}

// NewAgentService wires the pipeline. sessions may be nil.
func NewAgentService(cfg *config.Config, client types.LLMClient, store *portfolio.Store, sessions SessionStore) *AgentService {
	return &AgentService{
		cfg:      cfg,
		client:   client,
		store:    store,
		sessions: sessions,
		stage:    NewStageLLM(client, cfg.Agent.CritiqueScoreThreshold),
	}
}

// Submit runs one query through the pipeline. Steps start fresh on
// every call; an empty threadID starts a new thread.
func (a *AgentService) Submit(ctx context.Context, query, threadID string) (*Response, error) {
	if threadID == "" {
		threadID = uuid.NewString()
	}

	state := a.engine().Run(ctx, query, threadID)

	if a.sessions != nil {
		if err := a.sessions.AppendTurn(ctx, threadID, state.Query, state.FinalAnswer, state.Blocked); err != nil {
			logging.SessionDebug("failed to persist turn for thread %s: %v", threadID, err)
		}
	}

	return &Response{
		ThreadID:      threadID,
		Answer:        state.FinalAnswer,
		Blocked:       state.Blocked,
		BlockReason:   state.BlockReason,
		RevisionCount: state.RevisionCount,
		Steps:         state.Steps,
	}, nil
}

// engine returns the workflow built over the current dataset snapshot,
// rebuilding it when the store has reloaded.
func (a *AgentService) engine() *WorkflowEngine {
	a.mu.Lock()
	defer a.mu.Unlock()

	ds := a.store.Dataset()
	if a.workflow != nil && ds == a.snapshot {
		return a.workflow
	}

	registry := tools.NewPortfolioRegistry(ds, a.cfg.Agent.SimilarityFloor, a.cfg.Agent.MaxSuggestions)
	registry.SetTimeout(a.cfg.ToolTimeout())

	research := NewResearchLoop(a.client, registry, a.cfg.Agent.MaxToolIterations)
	critique := NewCritiqueEngine(a.stage, a.cfg.Agent.MaxRevisions)

	a.snapshot = ds
	a.workflow = NewWorkflowEngine(a.stage, research, critique, func() []string {
		return a.store.Dataset().AllProperties()
	})
	logging.Workflow("pipeline rebuilt over dataset snapshot (%d records)", ds.Len())
	return a.workflow
}
