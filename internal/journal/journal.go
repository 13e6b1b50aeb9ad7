// Package journal persists the lifecycle of scheduled commands: every status
// transition and every client notification, grouped by simulation run.
package journal

import (
	"context"
	"time"

	"github.com/me/rfsched/pkg/model"
)

// CommandRecord is the journaled summary of one command.
type CommandRecord struct {
	ID          string       `json:"id"`
	Run         string       `json:"run"`
	Kind        string       `json:"kind"`
	ClientID    string       `json:"client_id,omitempty"`
	Status      model.Status `json:"status"`
	FirstTick   uint32       `json:"first_tick"`
	LastTick    uint32       `json:"last_tick"`
	Transitions int          `json:"transitions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Journal defines the persistence layer for command history.
type Journal interface {
	// RecordTransition stores t and creates or updates the command's record.
	RecordTransition(ctx context.Context, run string, t model.Transition) error
	// RecordNotification stores one dispatch-level delivery.
	RecordNotification(ctx context.Context, run string, n model.Notification) error

	GetCommand(ctx context.Context, id string) (*CommandRecord, error)
	ListCommands(ctx context.Context, opts model.ListOptions) ([]*CommandRecord, int, error)
	ListTransitions(ctx context.Context, commandID string) ([]model.Transition, error)
	ListNotifications(ctx context.Context, commandID string, opts model.ListOptions) ([]model.Notification, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
