package automation

import (
	"context"

	"pipeline_backend/internal/automation/outbox"
	"pipeline_backend/internal/events"
	opprepo "pipeline_backend/internal/opportunities/repository"
	"pipeline_backend/platform/logger"

	"github.com/google/uuid"
)

// OpportunityReader resolves contact details for stage-entry messages.
type OpportunityReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*opprepo.Opportunity, error)
}

// Engine listens for stage changes and queues the playbook messages for the
// entered stage. Like the dispatcher, it only ever logs failures.
type Engine struct {
	opportunities OpportunityReader
	queue         MessageQueue
	playbook      *Playbook
	log           *logger.Logger
}

func NewEngine(opportunities OpportunityReader, queue MessageQueue, playbook *Playbook, log *logger.Logger) *Engine {
	return &Engine{
		opportunities: opportunities,
		queue:         queue,
		playbook:      playbook,
		log:           log,
	}
}

// Subscribe registers the engine on the event bus.
func (e *Engine) Subscribe(bus events.Bus) {
	bus.Subscribe(events.StageChanged{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		changed, ok := event.(events.StageChanged)
		if !ok {
			return nil
		}
		e.handleStageChanged(ctx, changed)
		return nil
	}))
}

func (e *Engine) handleStageChanged(ctx context.Context, event events.StageChanged) {
	messages := e.playbook.Stages[event.ToStage]
	if len(messages) == 0 {
		return
	}

	opp, err := e.opportunities.GetByID(ctx, event.OpportunityID)
	if err != nil {
		e.log.AutomationFailure("stage_messages", event.OpportunityID.String(), err)
		return
	}

	payload := MessagePayload{
		ContactName:  opp.ContactName,
		ContactPhone: deref(opp.ContactPhone),
		ContactEmail: deref(opp.ContactEmail),
		Stage:        event.ToStage,
	}

	for _, msg := range messages {
		channel := msg.Channel
		if channel == "" {
			channel = preferredChannel(opp)
		}
		_, err := e.queue.Insert(ctx, outbox.InsertParams{
			OpportunityID: opp.ID,
			BookingID:     event.BookingID,
			Channel:       channel,
			Template:      msg.Template,
			Payload:       payload,
		})
		if err != nil {
			e.log.AutomationFailure("stage_messages", event.OpportunityID.String(), err)
		}
	}
}
