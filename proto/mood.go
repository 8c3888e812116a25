package proto

import (
	"fmt"
	"strings"
	"time"
)

type Mood string

const (
	MoodHappy     Mood = "happy"
	MoodExcited   Mood = "excited"
	MoodSurprised Mood = "surprised"
	MoodNeutral   Mood = "neutral"
	MoodConfused  Mood = "confused"
	MoodSleepy    Mood = "sleepy"
	MoodSad       Mood = "sad"
	MoodFearful   Mood = "fearful"
	MoodDisgusted Mood = "disgusted"
	MoodAngry     Mood = "angry"
)

// DefaultMood is what unrecognized labels resolve to.
const DefaultMood = MoodNeutral

type MoodInfo struct {
	Name        Mood       `json:"name"`
	Emoji       string     `json:"emoji"`
	Description string     `json:"description"`
	Color       string     `json:"color"`           // Hex colour shown next to the mood
	Level       float64    `json:"level"`           // Base LED level in [0,1]
	Range       [2]float64 `json:"intensity_range"` // Levels reachable when the detector supplies an intensity
}

// moodTable is ordered by rank, brightest first.
var moodTable = []MoodInfo{
	{Name: MoodHappy, Emoji: "😊", Description: "Happy", Color: "#FFD700", Level: 1.0, Range: [2]float64{0.7, 1.0}},
	{Name: MoodExcited, Emoji: "🤩", Description: "Excited", Color: "#FF8C00", Level: 0.9, Range: [2]float64{0.8, 1.0}},
	{Name: MoodSurprised, Emoji: "😲", Description: "Surprised", Color: "#FF6347", Level: 0.8, Range: [2]float64{0.6, 0.9}},
	{Name: MoodNeutral, Emoji: "😐", Description: "Neutral", Color: "#A9A9A9", Level: 0.5, Range: [2]float64{0.4, 0.6}},
	{Name: MoodConfused, Emoji: "😕", Description: "Confused", Color: "#9370DB", Level: 0.4, Range: [2]float64{0.3, 0.5}},
	{Name: MoodSleepy, Emoji: "😴", Description: "Sleepy", Color: "#4169E1", Level: 0.3, Range: [2]float64{0.2, 0.4}},
	{Name: MoodSad, Emoji: "😢", Description: "Sad", Color: "#1E90FF", Level: 0.25, Range: [2]float64{0.1, 0.3}},
	{Name: MoodFearful, Emoji: "😨", Description: "Fearful", Color: "#9932CC", Level: 0.2, Range: [2]float64{0.1, 0.3}},
	{Name: MoodDisgusted, Emoji: "🤢", Description: "Disgusted", Color: "#32CD32", Level: 0.15, Range: [2]float64{0.1, 0.2}},
	{Name: MoodAngry, Emoji: "😠", Description: "Angry", Color: "#FF4500", Level: 0.1, Range: [2]float64{0.0, 0.2}},
}

var moodIndex = func() map[Mood]int {
	idx := make(map[Mood]int, len(moodTable))
	for i, m := range moodTable {
		idx[m.Name] = i
	}
	return idx
}()

// Moods returns a copy of the mood table, brightest first.
func Moods() []MoodInfo {
	out := make([]MoodInfo, len(moodTable))
	copy(out, moodTable)
	return out
}

// Info returns the table entry for m. Unknown moods get the neutral entry.
func (m Mood) Info() MoodInfo {
	if i, ok := moodIndex[m]; ok {
		return moodTable[i]
	}
	return moodTable[moodIndex[DefaultMood]]
}

func (m Mood) Valid() bool {
	_, ok := moodIndex[m]
	return ok
}

// EncodeError reports a mood label that is not part of the table.
type EncodeError struct {
	Label string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("unrecognized mood label %q", e.Label)
}

// ParseMood normalizes a label. Unknown labels return DefaultMood together
// with an *EncodeError so callers can log the fallback.
func ParseMood(label string) (Mood, error) {
	m := Mood(strings.ToLower(strings.TrimSpace(label)))
	if m.Valid() {
		return m, nil
	}
	return DefaultMood, &EncodeError{Label: label}
}

// MoodEvent is produced by an external detector and never modified afterwards.
type MoodEvent struct {
	Label     string    `json:"mood"`
	Intensity *float64  `json:"intensity,omitempty"` // nil when the detector gave no intensity
	Timestamp time.Time `json:"timestamp"`
}

func NewMoodEvent(label string) MoodEvent {
	return MoodEvent{Label: label, Timestamp: time.Now()}
}

// WithIntensity returns a copy of e carrying intensity v.
func (e MoodEvent) WithIntensity(v float64) MoodEvent {
	e.Intensity = &v
	return e
}
