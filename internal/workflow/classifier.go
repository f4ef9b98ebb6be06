package workflow

import (
	"sort"
	"strings"

	"github.com/dmehra/cairn/pkg/types"
)

// Classification is the outcome of InferStatus. Confidence below the
// threshold means "no inference": Status is empty and the caller should
// fall back to an explicit status.
type Classification struct {
	Status        string  `json:"status,omitempty"`
	Confidence    float64 `json:"confidence"`
	MatchedPhrase string  `json:"matched_phrase,omitempty"`
	Reasoning     string  `json:"reasoning"`
}

// InferenceThreshold is the minimum confidence for a classification to be
// acted on.
const InferenceThreshold = 0.4

// statusPhrases maps each status to weighted indicator phrases. Longer
// phrases are checked first so "working on" beats "working".
var statusPhrases = map[string][]phraseWeight{
	types.TaskStatusDone: {
		{"finished", 0.9},
		{"completed", 0.9},
		{"shipped", 0.8},
		{"merged", 0.8},
		{"deployed", 0.8},
		{"done", 0.8},
		{"resolved", 0.7},
		{"closed out", 0.7},
		{"wrapped up", 0.7},
		{"fixed", 0.6},
	},
	types.TaskStatusBlocked: {
		{"blocked", 0.9},
		{"waiting on", 0.8},
		{"waiting for", 0.8},
		{"stuck", 0.8},
		{"can't proceed", 0.8},
		{"cannot proceed", 0.8},
		{"on hold", 0.7},
		{"need input", 0.6},
		{"depends on", 0.5},
	},
	types.TaskStatusInProgress: {
		{"in progress", 0.9},
		{"working on", 0.8},
		{"started", 0.7},
		{"starting", 0.7},
		{"picking up", 0.7},
		{"halfway", 0.6},
		{"continuing", 0.6},
		{"implementing", 0.6},
		{"debugging", 0.5},
	},
	types.TaskStatusTodo: {
		{"not started", 0.8},
		{"haven't started", 0.8},
		{"todo", 0.7},
		{"to do", 0.7},
		{"planning to", 0.6},
		{"will start", 0.6},
		{"backlog", 0.5},
	},
}

type phraseWeight struct {
	phrase string
	weight float64
}

// Classifier infers a task status from free text. Purely lexical: it scans
// for indicator phrases and scores each status by its strongest match plus a
// small bonus per additional matching phrase.
type Classifier struct{}

// NewClassifier returns a phrase-based classifier.
func NewClassifier() *Classifier { return &Classifier{} }

// InferStatus classifies the text. The result always carries Reasoning;
// Status is empty when confidence falls below InferenceThreshold.
func (c *Classifier) InferStatus(text string) Classification {
	lowered := strings.ToLower(text)

	type candidate struct {
		status     string
		confidence float64
		phrase     string
		hits       int
	}
	var candidates []candidate

	for status, phrases := range statusPhrases {
		best := 0.0
		bestPhrase := ""
		hits := 0
		for _, pw := range phrases {
			if !strings.Contains(lowered, pw.phrase) {
				continue
			}
			hits++
			if pw.weight > best {
				best = pw.weight
				bestPhrase = pw.phrase
			}
		}
		if hits == 0 {
			continue
		}
		// Strongest phrase sets the base, extra phrases corroborate.
		conf := best + 0.05*float64(hits-1)
		if conf > 1.0 {
			conf = 1.0
		}
		candidates = append(candidates, candidate{status, conf, bestPhrase, hits})
	}

	if len(candidates) == 0 {
		return Classification{Reasoning: "no status indicators found in text"}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].confidence != candidates[j].confidence {
			return candidates[i].confidence > candidates[j].confidence
		}
		// Ties break toward the more specific signal.
		if candidates[i].hits != candidates[j].hits {
			return candidates[i].hits > candidates[j].hits
		}
		return candidates[i].status < candidates[j].status
	})

	top := candidates[0]
	if len(candidates) > 1 && candidates[1].confidence == top.confidence && candidates[1].hits == top.hits {
		// Two statuses are equally supported; refuse to guess.
		return Classification{
			Confidence: top.confidence,
			Reasoning:  "ambiguous: " + top.status + " and " + candidates[1].status + " are equally indicated",
		}
	}

	result := Classification{
		Status:        top.status,
		Confidence:    top.confidence,
		MatchedPhrase: top.phrase,
		Reasoning:     "matched " + quotePhrase(top.phrase) + " indicating " + top.status,
	}
	if result.Confidence < InferenceThreshold {
		result.Status = ""
		result.Reasoning += " (below confidence threshold)"
	}
	return result
}

func quotePhrase(p string) string { return `"` + p + `"` }
