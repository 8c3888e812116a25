package proto

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
)

// Levels carry exactly the precision the device is sent.
const (
	levelDecimals = 2
	levelScale    = 100
)

// Encode maps a MoodEvent to the command for target. It is total: unknown
// labels fall back to DefaultMood and the returned level is always in [0,1].
// Encode does no I/O and leaves Command.ID empty.
func Encode(ev MoodEvent, target EndpointRef) Command {
	mood, err := ParseMood(ev.Label)
	level := Level(mood, ev.Intensity)

	return Command{
		Target:   target,
		Mood:     mood,
		Level:    level,
		Payload:  encodePayload(target.Kind, mood, level),
		Fallback: err != nil,
		IssuedAt: ev.Timestamp,
	}
}

// Level returns the LED level for mood. A nil intensity yields the base table
// level; otherwise the intensity picks a point inside the mood's range.
func Level(mood Mood, intensity *float64) float64 {
	info := mood.Info()
	level := info.Level
	if intensity != nil && !math.IsNaN(*intensity) {
		i := clamp(*intensity)
		lo, hi := info.Range[0], info.Range[1]
		level = lo + i*(hi-lo)
	}
	return math.Round(clamp(level)*levelScale) / levelScale
}

func encodePayload(kind EndpointKind, mood Mood, level float64) string {
	if kind == KindPoll {
		return url.Values{"led": {strconv.FormatFloat(level, 'f', levelDecimals, 64)}}.Encode()
	}
	// Marshalling a struct of a string and a finite float cannot fail.
	b, _ := json.Marshal(BrokerPayload{Mood: string(mood), Intensity: level})
	return string(b)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
