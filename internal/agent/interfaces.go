package agent

import (
	"context"

	"github.com/brainstorm/brainstorm/internal/models"
)

// Invoker issues a named remote reasoning call and returns its raw text.
// The production implementation lives in internal/inference; tests inject
// fakes.
type Invoker interface {
	Invoke(ctx context.Context, service, prompt string) (string, error)
}

// Request carries the context assembled for one agent invocation. The
// foreground path fills only Utterance and a short History slice; the
// background path adds the full item collection.
type Request struct {
	ProjectID string
	Utterance string
	History   []models.ConversationTurn
	Items     []models.ProjectItem
}

// Agent is a specialized remote reasoning call with a fixed output contract.
type Agent interface {
	ID() models.AgentID
	Execute(ctx context.Context, req *Request) (*models.AgentResult, error)
}
