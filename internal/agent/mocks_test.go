package agent

import (
	"context"
	"sync"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/memory"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/planner"
)

// scriptedPlanner replays a queue of plans; when the queue runs dry it keeps
// returning the last one.
type scriptedPlanner struct {
	mu          sync.Mutex
	plans       []schemas.Plan
	planErr     error
	createCalls int
	updateCalls int
	visionCalls int
	contexts    []planner.Context
	approved    bool
	critique    string
	completed   bool
	reason      string
}

func newScriptedPlanner(plans ...schemas.Plan) *scriptedPlanner {
	return &scriptedPlanner{plans: plans, approved: true, completed: true}
}

func (s *scriptedPlanner) nextPlan() (schemas.Plan, error) {
	if s.planErr != nil {
		return schemas.Plan{}, s.planErr
	}
	plan := s.plans[0]
	if len(s.plans) > 1 {
		s.plans = s.plans[1:]
	}
	return plan, nil
}

func (s *scriptedPlanner) CreatePlan(ctx context.Context, pctx planner.Context) (schemas.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	s.contexts = append(s.contexts, pctx)
	return s.nextPlan()
}

func (s *scriptedPlanner) UpdatePlan(ctx context.Context, pctx planner.Context) (schemas.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	s.contexts = append(s.contexts, pctx)
	return s.nextPlan()
}

func (s *scriptedPlanner) UpdatePlanWithVision(ctx context.Context, pctx planner.Context, raster []byte) (schemas.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visionCalls++
	s.contexts = append(s.contexts, pctx)
	return s.nextPlan()
}

func (s *scriptedPlanner) CritiquePlan(ctx context.Context, task string, plan schemas.Plan) (bool, string, error) {
	return s.approved, s.critique, nil
}

func (s *scriptedPlanner) VerifyCompletion(ctx context.Context, task string, records []schemas.ExecutionRecord, pageText string) (bool, string, error) {
	return s.completed, s.reason, nil
}

func (s *scriptedPlanner) GenerateSummary(ctx context.Context, task string, records []schemas.ExecutionRecord, pageText string) string {
	return "summary of " + task
}

// scriptedExecutor maps step descriptions to outcomes; unknown steps succeed
// generically. Errors can be queued per description.
type scriptedExecutor struct {
	mu       sync.Mutex
	outcomes map[string]string
	errs     map[string]error
	executed []schemas.Step
	block    chan struct{}
}

func (e *scriptedExecutor) Execute(ctx context.Context, step schemas.Step, snapshot *schemas.Snapshot) (string, error) {
	if e.block != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-e.block:
		}
	}
	e.mu.Lock()
	e.executed = append(e.executed, step)
	e.mu.Unlock()
	if err, ok := e.errs[step.Description]; ok {
		return "", err
	}
	if outcome, ok := e.outcomes[step.Description]; ok {
		return outcome, nil
	}
	return "did: " + step.Description, nil
}

// countingGrounder serves the same snapshot forever, counting scans.
type countingGrounder struct {
	snapshot *schemas.Snapshot
	scans    int
	err      error
}

func (g *countingGrounder) Scan(ctx context.Context) (*schemas.Snapshot, error) {
	g.scans++
	if g.err != nil {
		return nil, g.err
	}
	snap := *g.snapshot
	snap.Generation = uint64(g.scans)
	return &snap, nil
}

// memStore is an in-memory ExperienceStore double.
type memStore struct {
	mu       sync.Mutex
	saved    []savedExperience
	logged   []schemas.ExecutionRecord
	recalled *memory.Experience
}

type savedExperience struct {
	domain  string
	task    string
	success bool
	steps   []schemas.ExecutionRecord
}

func (m *memStore) Save(ctx context.Context, domain, task string, success bool, steps []schemas.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, savedExperience{domain: domain, task: task, success: success, steps: steps})
	return nil
}

func (m *memStore) Recall(ctx context.Context, domain, task string) (*memory.Experience, error) {
	if m.recalled == nil {
		return nil, memory.ErrNoExperience
	}
	return m.recalled, nil
}

func (m *memStore) LogStep(ctx context.Context, runID string, index int, rec schemas.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logged = append(m.logged, rec)
	return nil
}
