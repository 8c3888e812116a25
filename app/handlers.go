package app

import (
	"encoding/json"
	"log/slog"

	"github.com/mbocsi/moodsync/proto"
)

// HandleInbound logs messages arriving on a broker's inbound topic. Other
// clients on the shared topic publish the same payload shape we do.
func (a *App) HandleInbound(ep proto.EndpointRef, payload []byte) {
	var msg proto.BrokerPayload
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Mood == "" {
		slog.Debug("Unrecognized inbound message", "endpoint", ep.Name, "bytes", len(payload))
		return
	}

	mood, err := proto.ParseMood(msg.Mood)
	if err != nil {
		slog.Info("Inbound mood not in table", "endpoint", ep.Name, "label", msg.Mood, "intensity", msg.Intensity)
		return
	}
	slog.Info("Inbound mood", "endpoint", ep.Name, "mood", mood, "emoji", mood.Info().Emoji, "intensity", msg.Intensity)
}
