package patterns

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmehra/cairn/pkg/types"
)

// Episode classifications.
const (
	EpisodeDebugging      = "debugging"
	EpisodeImplementation = "implementation"
	EpisodeResearch       = "research"
)

// Episode is a burst of related actions separated from its neighbors by an
// idle gap.
type Episode struct {
	Session  string    `json:"session"`
	Project  string    `json:"project,omitempty"`
	Kind     string    `json:"kind"` // debugging|implementation|research
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Actions  []Action  `json:"-"`
	Targets  []string  `json:"targets,omitempty"`
	Evidence string    `json:"evidence"`
}

// Duration is the episode's wall-clock span.
func (e *Episode) Duration() time.Duration { return e.End.Sub(e.Start) }

// Detector groups logged actions into classified work episodes.
type Detector struct {
	log *Log

	// gap is the idle duration that closes an episode.
	gap time.Duration

	// minActions filters out trivial episodes. Default 3.
	minActions int
}

// NewDetector builds a detector over the action log.
func NewDetector(log *Log, gap time.Duration, minActions int) *Detector {
	if gap <= 0 {
		gap = 15 * time.Minute
	}
	if minActions <= 0 {
		minActions = 3
	}
	return &Detector{log: log, gap: gap, minActions: minActions}
}

// DetectSession splits one session's actions into episodes.
func (d *Detector) DetectSession(ctx context.Context, session string) ([]Episode, error) {
	actions, err := d.log.SessionActions(ctx, session)
	if err != nil {
		return nil, err
	}
	return d.split(actions), nil
}

// DetectSince splits all actions after the cutoff into per-session episodes.
func (d *Detector) DetectSince(ctx context.Context, cutoff time.Time) ([]Episode, error) {
	actions, err := d.log.ActionsSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	bySession := make(map[string][]Action)
	for _, a := range actions {
		bySession[a.Session] = append(bySession[a.Session], a)
	}
	sessions := make([]string, 0, len(bySession))
	for s := range bySession {
		sessions = append(sessions, s)
	}
	sort.Strings(sessions)

	var episodes []Episode
	for _, s := range sessions {
		episodes = append(episodes, d.split(bySession[s])...)
	}
	return episodes, nil
}

// split applies burst detection: a gap longer than d.gap starts a new
// episode. Actions arrive chronologically sorted from the log.
func (d *Detector) split(actions []Action) []Episode {
	var episodes []Episode
	var current []Action
	flush := func() {
		if len(current) >= d.minActions {
			episodes = append(episodes, d.build(current))
		}
		current = nil
	}
	for _, a := range actions {
		if len(current) > 0 && a.OccurredAt.Sub(current[len(current)-1].OccurredAt) > d.gap {
			flush()
		}
		current = append(current, a)
	}
	flush()
	return episodes
}

// build assembles and classifies one episode from its actions.
func (d *Detector) build(actions []Action) Episode {
	ep := Episode{
		Session: actions[0].Session,
		Start:   actions[0].OccurredAt,
		End:     actions[len(actions)-1].OccurredAt,
		Actions: actions,
	}
	seen := make(map[string]bool)
	for _, a := range actions {
		if ep.Project == "" && a.Project != "" {
			ep.Project = a.Project
		}
		if a.Target != "" && !seen[a.Target] {
			seen[a.Target] = true
			ep.Targets = append(ep.Targets, a.Target)
		}
	}
	ep.Kind, ep.Evidence = classify(actions)
	return ep
}

// debugCues mark an action as debugging-flavored wherever they appear in its
// target or detail text.
var debugCues = []string{"error", "panic", "fail", "stack", "trace", "fix", "bug", "debug"}

// classify labels an episode by its dominant activity. Searches dominate
// research, edits dominate implementation; debugging wins when debug cues
// appear alongside edits.
func classify(actions []Action) (kind, evidence string) {
	edits, searches, debugHits := 0, 0, 0
	for _, a := range actions {
		switch a.Kind {
		case ActionFileEdit:
			edits++
		case ActionSearch:
			searches++
		}
		text := strings.ToLower(a.Target + " " + a.Detail)
		for _, cue := range debugCues {
			if strings.Contains(text, cue) {
				debugHits++
				break
			}
		}
	}
	total := len(actions)
	switch {
	case debugHits*2 >= total && edits > 0:
		return EpisodeDebugging, fmt.Sprintf("%d of %d actions carry debugging cues", debugHits, total)
	case searches*2 > total:
		return EpisodeResearch, fmt.Sprintf("%d of %d actions are searches", searches, total)
	default:
		return EpisodeImplementation, fmt.Sprintf("%d edit(s) across %d actions", edits, total)
	}
}

// CandidateMemory renders an episode as a memory the caller may persist.
// Nothing is written here; persistence stays a caller decision.
func (e *Episode) CandidateMemory() *types.Memory {
	var b strings.Builder
	fmt.Fprintf(&b, "%s session (%s, %d actions)\n\n",
		capitalize(e.Kind), e.Duration().Round(time.Minute), len(e.Actions))
	fmt.Fprintf(&b, "%s\n", e.Evidence)
	if len(e.Targets) > 0 {
		b.WriteString("\nTouched:\n")
		for _, t := range e.Targets {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	mem := &types.Memory{
		Content:   b.String(),
		Project:   e.Project,
		Category:  categoryFor(e.Kind),
		Tags:      []string{"work-pattern", e.Kind},
		Timestamp: e.End,
	}
	mem.Normalize()
	return mem
}

func categoryFor(kind string) string {
	switch kind {
	case EpisodeDebugging:
		return types.CategoryDebugging
	case EpisodeResearch:
		return types.CategoryResearch
	default:
		return types.CategoryGeneral
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
