// Package notifier tails the transition event stream and surfaces
// instances that just suspended at an interrupt node, i.e. the ones now
// waiting on a human decision. It is an external observer: it never
// touches workflow state.
package notifier

import (
	"context"
	"log/slog"

	"procflow/internal/core/ports"
	"procflow/internal/engine"
)

type Notifier struct {
	bus      ports.EventBus
	registry *engine.Registry
	log      *slog.Logger
}

func New(bus ports.EventBus, registry *engine.Registry, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{bus: bus, registry: registry, log: log}
}

// Start blocks until ctx is cancelled. Run it as a goroutine from main.
func (n *Notifier) Start(ctx context.Context) error {
	events, err := n.bus.SubscribeToTransitions(ctx)
	if err != nil {
		return err
	}
	n.log.Info("notifier started, listening for transitions")

	for {
		select {
		case <-ctx.Done():
			n.log.Info("notifier shutting down")
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if n.registry.IsInterrupt(event.WorkflowType, event.ToNode) {
				n.log.Info("instance awaiting approval",
					"thread_id", event.ThreadID,
					"workflow_type", event.WorkflowType,
					"node", event.ToNode)
				continue
			}
			n.log.Debug("transition observed",
				"thread_id", event.ThreadID,
				"from", event.FromNode,
				"to", event.ToNode)
		}
	}
}
