package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/brainstorm/brainstorm/internal/models"
)

// Router classifies an utterance's intent and expands it into a workflow
// plan. Classification is a single remote reasoning call and is never cached:
// it is cheap relative to the downstream agents and sensitive to the freshest
// history. Plan expansion is a pure lookup into a static table.
type Router struct {
	invoker Invoker
}

// NewRouter creates a router over the given invoker.
func NewRouter(invoker Invoker) *Router {
	return &Router{invoker: invoker}
}

// planTable maps each intent to its fixed agent sequence. Group 0 steps run
// sequentially in order; steps sharing a non-zero group run concurrently.
var planTable = map[models.IntentType][]models.PlanStep{
	models.IntentDeciding: {
		{AgentID: models.AgentVerification},
		{AgentID: models.AgentRecorder, Requires: models.AgentVerification},
		{AgentID: models.AgentConsistency},
	},
	models.IntentExploring: {
		{AgentID: models.AgentGapDetector, ParallelGroup: 1},
		{AgentID: models.AgentQuality, ParallelGroup: 1},
	},
	models.IntentResearch: {
		{AgentID: models.AgentResearch},
	},
	models.IntentReviewing: {
		{AgentID: models.AgentQuality, ParallelGroup: 1},
		{AgentID: models.AgentConsistency, ParallelGroup: 1},
	},
	models.IntentGeneral: {},
}

// fallbackIntent is used when classification fails; it must never block the
// turn.
func fallbackIntent() models.Intent {
	return models.Intent{Type: models.IntentGeneral, Confidence: 30}
}

// ClassifyIntent classifies one utterance. A remote or parse failure degrades
// to the low-confidence general intent instead of failing the turn.
func (r *Router) ClassifyIntent(ctx context.Context, utterance string, history []models.ConversationTurn) models.Intent {
	prompt := r.buildClassificationPrompt(utterance, history)

	text, err := r.invoker.Invoke(ctx, string(models.AgentClassifier), prompt)
	if err != nil {
		log.Printf("intent classification failed, using general fallback: %v", err)
		return fallbackIntent()
	}

	var decision struct {
		Intent                string `json:"intent"`
		Confidence            int    `json:"confidence"`
		RequiresClarification bool   `json:"requires_clarification"`
	}
	if err := parseJSONResponse(text, &decision); err != nil {
		log.Printf("failed to parse classification, using general fallback: %v", err)
		return fallbackIntent()
	}

	return models.Intent{
		Type:                  normalizeIntentType(decision.Intent),
		Confidence:            clampConfidence(decision.Confidence),
		RequiresClarification: decision.RequiresClarification,
	}
}

// PlanWorkflow expands a classified intent into its fixed agent sequence.
func (r *Router) PlanWorkflow(intent models.Intent, utterance string) *models.WorkflowPlan {
	steps, ok := planTable[intent.Type]
	if !ok {
		steps = planTable[models.IntentGeneral]
	}

	// Copy so a plan stays immutable even if the table ever changes.
	planSteps := make([]models.PlanStep, len(steps))
	copy(planSteps, steps)

	return &models.WorkflowPlan{
		Intent:                intent.Type,
		Confidence:            intent.Confidence,
		Steps:                 planSteps,
		RequiresClarification: intent.RequiresClarification,
	}
}

func (r *Router) buildClassificationPrompt(utterance string, history []models.ConversationTurn) string {
	return fmt.Sprintf(`You classify the intent of a message in a project brainstorming session.

Intents:
- deciding: the user is committing to a decision ("let's go with X", "we'll use Y")
- exploring: the user is weighing options or thinking out loud
- research: the user asks a factual question needing external knowledge
- reviewing: the user asks to review or check decisions made so far
- general: greetings, meta questions, anything else

%sMessage: %s

Respond with ONLY a JSON object:
{
  "intent": "deciding|exploring|research|reviewing|general",
  "confidence": 0-100,
  "requires_clarification": true|false
}

JSON Response:`, formatHistory(history), utterance)
}

// normalizeIntentType converts model output to a known intent constant,
// falling back to general for anything unrecognized.
func normalizeIntentType(s string) models.IntentType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deciding", "decide", "decision":
		return models.IntentDeciding
	case "exploring", "explore", "brainstorming":
		return models.IntentExploring
	case "research", "question":
		return models.IntentResearch
	case "reviewing", "review":
		return models.IntentReviewing
	default:
		return models.IntentGeneral
	}
}
