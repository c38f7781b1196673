package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/brainstorm/brainstorm/internal/models"
	"github.com/brainstorm/brainstorm/internal/resilience"
	"github.com/brainstorm/brainstorm/internal/store"
)

// turnPhase tracks one turn through the pipeline for logging. Terminal
// phases are delta-published and delta-published-empty.
type turnPhase string

const (
	phaseReceived      turnPhase = "received"
	phaseForeground    turnPhase = "foreground-dispatched"
	phaseClassifying   turnPhase = "background-classifying"
	phaseExecuting     turnPhase = "background-executing"
	phaseReconciling   turnPhase = "reconciling"
	phasePublished     turnPhase = "delta-published"
	phasePublishedNone turnPhase = "delta-published-empty"
)

// EngineConfig holds execution engine settings.
type EngineConfig struct {
	ForegroundTimeout time.Duration // wall clock for the user-visible reply
	BackgroundTimeout time.Duration // independent budget for the pipeline
	FastHistoryLimit  int           // turns fetched on the foreground path
	HistoryLimit      int           // turns fetched on the background path
	FallbackReply     string        // degraded acknowledgment on foreground failure
}

// DefaultEngineConfig returns default engine settings.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		ForegroundTimeout: 15 * time.Second,
		BackgroundTimeout: 2 * time.Minute,
		FastHistoryLimit:  6,
		HistoryLimit:      20,
		FallbackReply:     "Got it — give me a moment to think that through, and keep going.",
	}
}

// Deps are the collaborators an engine is built from. Cache and buffer are
// explicitly constructed and injected rather than ambient globals so tests
// can isolate instances.
type Deps struct {
	Router        *Router
	Cache         *ResponseCache
	Buffer        *ResultBuffer
	Reconciler    *Reconciler
	Conversations store.ConversationStore
	Projects      store.ProjectStore
	Trail         store.ActivityTrail
	Breakers      *resilience.BreakerRegistry
	Retry         *resilience.Policy
}

// Engine runs workflow plans: a fast foreground call for the user-visible
// reply and a detached background pipeline for classification-dependent side
// effects. Nothing that happens after the foreground reply is dispatched can
// surface an error to the original caller.
type Engine struct {
	config *EngineConfig
	deps   Deps
	retry  resilience.Policy

	mu     sync.RWMutex
	agents map[models.AgentID]Agent

	bg sync.WaitGroup
}

// NewEngine creates an engine. Agents are registered separately.
func NewEngine(config *EngineConfig, deps Deps) *Engine {
	if config == nil {
		config = DefaultEngineConfig()
	}
	retry := resilience.DefaultPolicy()
	if deps.Retry != nil {
		retry = *deps.Retry
	}
	if deps.Breakers == nil {
		deps.Breakers = resilience.NewBreakerRegistry(resilience.DefaultBreakerConfig())
	}
	return &Engine{
		config: config,
		deps:   deps,
		retry:  retry,
		agents: make(map[models.AgentID]Agent),
	}
}

// RegisterAgent adds an agent to the engine.
func (e *Engine) RegisterAgent(a Agent) error {
	if a == nil {
		return fmt.Errorf("cannot register nil agent")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.agents[a.ID()]; exists {
		return fmt.Errorf("agent %s already registered", a.ID())
	}
	e.agents[a.ID()] = a
	return nil
}

func (e *Engine) agent(id models.AgentID) (Agent, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.agents[id]
	if !ok {
		return nil, fmt.Errorf("no agent registered for %s", id)
	}
	return a, nil
}

// HandleUtterance runs one turn: it persists the user turn, produces the
// foreground reply, schedules the background pipeline without awaiting it,
// and returns immediately.
func (e *Engine) HandleUtterance(ctx context.Context, projectID, utterance string) *models.AgentResult {
	log.Printf("turn %s: %s", projectID, phaseReceived)

	if err := e.deps.Conversations.AppendTurn(ctx, projectID, models.ConversationTurn{
		Role:    "user",
		Content: utterance,
	}); err != nil {
		log.Printf("failed to persist user turn: %v", err)
	}

	reply := e.RespondFast(ctx, projectID, utterance)
	log.Printf("turn %s: %s", projectID, phaseForeground)

	if err := e.deps.Conversations.AppendTurn(ctx, projectID, models.ConversationTurn{
		Role:    "assistant",
		Content: reply.Message,
		AgentID: reply.AgentID,
	}); err != nil {
		log.Printf("failed to persist assistant turn: %v", err)
	}

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		e.RunBackground(projectID, utterance)
	}()

	return reply
}

// RespondFast invokes the conversational responder with minimal context —
// recent history only, no project state, no attachments — so the reply lands
// before intent is even known. Failure or timeout degrades to a generic
// acknowledgment rather than an error: the conversational surface must
// always answer.
func (e *Engine) RespondFast(ctx context.Context, projectID, utterance string) *models.AgentResult {
	fgCtx, cancel := context.WithTimeout(ctx, e.config.ForegroundTimeout)
	defer cancel()

	history, err := e.deps.Conversations.RecentTurns(fgCtx, projectID, e.config.FastHistoryLimit)
	if err != nil {
		log.Printf("failed to fetch recent turns, replying without history: %v", err)
	}

	req := &Request{
		ProjectID: projectID,
		Utterance: utterance,
		History:   history,
	}

	result, err := e.invokeAgent(fgCtx, models.AgentResponder, req)
	if err != nil {
		log.Printf("foreground reply failed, using fallback: %v", err)
		return &models.AgentResult{
			AgentID:       models.AgentResponder,
			Message:       e.config.FallbackReply,
			VisibleToUser: true,
		}
	}
	return result
}

// RunBackground executes the deferred pipeline for one turn: fetch the full
// context, classify, plan, execute, reconcile. Whatever happens — success,
// per-agent failures, a panic — a delta (possibly empty) is published so a
// poller is never left waiting.
func (e *Engine) RunBackground(projectID, utterance string) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), e.config.BackgroundTimeout)
	defer cancel()

	delta := &models.Delta{}
	entry := store.ActivityEntry{ProjectID: projectID, StartedAt: start}

	defer func() {
		if r := recover(); r != nil {
			entry.Failure = fmt.Sprintf("panic: %v", r)
		}
		entry.Duration = time.Since(start)
		entry.ItemsAdded = len(delta.Added)

		e.deps.Buffer.Publish(projectID, delta)
		if delta.Empty() {
			log.Printf("turn %s: %s", projectID, phasePublishedNone)
		} else {
			log.Printf("turn %s: %s (%d added)", projectID, phasePublished, len(delta.Added))
		}

		if e.deps.Trail != nil {
			trailCtx, trailCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer trailCancel()
			if err := e.deps.Trail.Record(trailCtx, entry); err != nil {
				log.Printf("failed to record activity: %v", err)
			}
		}
	}()

	history, err := e.deps.Conversations.RecentTurns(ctx, projectID, e.config.HistoryLimit)
	if err != nil {
		log.Printf("background history fetch failed: %v", err)
	}
	items, err := e.deps.Projects.ReadItems(ctx, projectID)
	if err != nil {
		log.Printf("background state fetch failed: %v", err)
	}

	log.Printf("turn %s: %s", projectID, phaseClassifying)
	intent := e.deps.Router.ClassifyIntent(ctx, utterance, history)
	entry.Intent = intent.Type
	plan := e.deps.Router.PlanWorkflow(intent, utterance)

	log.Printf("turn %s: %s (intent=%s, %d steps)", projectID, phaseExecuting, intent.Type, len(plan.Steps))
	req := &Request{
		ProjectID: projectID,
		Utterance: utterance,
		History:   history,
		Items:     items,
	}
	results := e.executePlan(ctx, plan, req, &entry)

	log.Printf("turn %s: %s", projectID, phaseReconciling)
	d, err := e.deps.Reconciler.ApplyDirectives(ctx, projectID, results)
	if err != nil {
		entry.Failure = err.Error()
		log.Printf("reconciliation failed: %v", err)
		return
	}
	delta = d
}

// executePlan runs a plan's steps: group 0 steps sequentially, steps sharing
// a non-zero group concurrently. A single agent's failure is a partial
// failure — logged, skipped — unless a later step's hard dependency on it is
// broken, in which case the remaining plan short-circuits and the turn ends
// with an empty delta.
func (e *Engine) executePlan(ctx context.Context, plan *models.WorkflowPlan, req *Request, entry *store.ActivityEntry) []*models.AgentResult {
	succeeded := make(map[models.AgentID]*models.AgentResult)
	var results []*models.AgentResult

	for i := 0; i < len(plan.Steps); {
		step := plan.Steps[i]

		if step.ParallelGroup != 0 {
			j := i
			for j < len(plan.Steps) && plan.Steps[j].ParallelGroup == step.ParallelGroup {
				j++
			}
			group := plan.Steps[i:j]

			groupResults := make([]*models.AgentResult, len(group))
			var wg sync.WaitGroup
			for k, member := range group {
				wg.Add(1)
				go func(k int, id models.AgentID) {
					defer wg.Done()
					res, err := e.invokeAgent(ctx, id, req)
					if err != nil {
						log.Printf("agent %s failed (partial): %v", id, err)
						return
					}
					groupResults[k] = res
				}(k, member.AgentID)
				entry.AgentsRun = append(entry.AgentsRun, string(member.AgentID))
			}
			wg.Wait()

			for k, res := range groupResults {
				if res != nil {
					succeeded[group[k].AgentID] = res
					results = append(results, res)
				}
			}
			i = j
			continue
		}

		if step.Requires != "" && succeeded[step.Requires] == nil {
			log.Printf("agent %s requires %s which did not succeed; short-circuiting plan", step.AgentID, step.Requires)
			entry.Failure = fmt.Sprintf("hard dependency broken: %s requires %s", step.AgentID, step.Requires)
			return nil
		}

		entry.AgentsRun = append(entry.AgentsRun, string(step.AgentID))
		res, err := e.invokeAgent(ctx, step.AgentID, req)
		if err != nil {
			log.Printf("agent %s failed (partial): %v", step.AgentID, err)
			i++
			continue
		}
		succeeded[step.AgentID] = res
		results = append(results, res)
		i++
	}

	return results
}

// invokeAgent wraps one invocation in the response cache, the per-agent
// circuit breaker and the retry policy, in that order: a cache hit must not
// touch the breaker, and the breaker counts a fully retried call as one
// failure.
func (e *Engine) invokeAgent(ctx context.Context, id models.AgentID, req *Request) (*models.AgentResult, error) {
	a, err := e.agent(id)
	if err != nil {
		return nil, err
	}

	inputs := FingerprintInputs{
		Message:    req.Utterance,
		Items:      req.Items,
		HistoryLen: len(req.History),
	}

	return e.deps.Cache.GetOrCompute(ctx, id, inputs, func(ctx context.Context) (*models.AgentResult, error) {
		breaker := e.deps.Breakers.Get(string(id))

		var result *models.AgentResult
		err := breaker.Execute(ctx, func(ctx context.Context) error {
			r, retryErr := resilience.RetryWithBackoff(ctx, e.retry, func(ctx context.Context) (*models.AgentResult, error) {
				return a.Execute(ctx, req)
			})
			if retryErr != nil {
				return retryErr
			}
			result = r
			return nil
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	})
}

// Stats aggregates cache and breaker counters for the observability surface.
type Stats struct {
	Cache    CacheStats                         `json:"cache"`
	Breakers map[string]resilience.BreakerStats `json:"breakers"`
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Cache:    e.deps.Cache.Stats(),
		Breakers: e.deps.Breakers.Stats(),
	}
}

// Wait blocks until every scheduled background pipeline has finished.
func (e *Engine) Wait() {
	e.bg.Wait()
}

// Close waits for in-flight background work and stops the buffer sweeper.
func (e *Engine) Close() {
	e.bg.Wait()
	e.deps.Buffer.Close()
}
