package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/surebot/internal/domain"
)

// ArbStatusMessage is the JSON published on domain.ChannelArbStatus.
type ArbStatusMessage struct {
	Type string      `json:"type"`
	Arb  *domain.Arb `json:"arb"`
}

// ArbPublisher publishes every arb transition on the signal bus so that
// dashboards and other processes can follow the pipeline.
type ArbPublisher struct {
	bus domain.SignalBus
}

// NewArbPublisher creates an ArbPublisher.
func NewArbPublisher(bus domain.SignalBus) *ArbPublisher {
	return &ArbPublisher{bus: bus}
}

// OnArbStatus publishes arb.
func (p *ArbPublisher) OnArbStatus(ctx context.Context, arb *domain.Arb) error {
	payload, err := json.Marshal(ArbStatusMessage{Type: "arb_status", Arb: arb})
	if err != nil {
		return fmt.Errorf("redis: encode arb %s: %w", arb.ID, err)
	}
	return p.bus.Publish(ctx, domain.ChannelArbStatus, payload)
}
