package search

import (
	"sort"
	"strings"
)

// Query intent classes. Intent steers which expansion context terms are
// added before the expanded pass runs.
const (
	IntentHowWhy    = "how_why"   // "how do I", "why does": procedural/causal
	IntentDebugging = "debugging" // errors, failures, fixes
	IntentLookup    = "lookup"    // plain term lookup (default)
)

// intentMarkers maps trigger tokens to an intent class. First hit wins,
// checked in the order below.
var intentMarkers = []struct {
	intent string
	tokens []string
}{
	{IntentHowWhy, []string{"how", "why", "when", "should"}},
	{IntentDebugging, []string{"error", "bug", "fix", "broken", "fails", "failing", "crash", "debug", "issue"}},
}

// intentContext adds domain context terms per intent, so a debugging query
// also surfaces notes tagged with the debugging vocabulary.
var intentContext = map[string][]string{
	IntentHowWhy:    {"howto", "guide", "steps"},
	IntentDebugging: {"debugging", "error", "fix", "workaround"},
}

// expansions is the static synonym/context vocabulary. Keys are query
// tokens; values are the terms the expanded pass re-runs with.
var expansions = map[string][]string{
	"auth":      {"authentication", "authorization", "login", "jwt", "oauth"},
	"login":     {"auth", "authentication", "signin", "session"},
	"jwt":       {"token", "auth", "authentication"},
	"db":        {"database", "sql", "postgres", "sqlite", "schema"},
	"database":  {"db", "sql", "schema", "migration"},
	"api":       {"endpoint", "rest", "http", "handler"},
	"deploy":    {"deployment", "release", "ci", "pipeline"},
	"test":      {"testing", "unit", "coverage", "assertion"},
	"bug":       {"error", "defect", "fix", "regression"},
	"error":     {"failure", "exception", "bug", "panic"},
	"config":    {"configuration", "settings", "env", "environment"},
	"cache":     {"caching", "lru", "invalidation"},
	"perf":      {"performance", "latency", "profiling", "optimization"},
	"doc":       {"documentation", "readme", "notes"},
	"meeting":   {"notes", "discussion", "decision"},
	"search":    {"query", "ranking", "index"},
	"memory":    {"note", "knowledge", "record"},
	"task":      {"todo", "work", "ticket"},
	"refactor":  {"cleanup", "rewrite", "restructure"},
	"security":  {"vulnerability", "cve", "injection", "sanitize"},
	"frontend":  {"ui", "css", "component", "react"},
	"backend":   {"server", "service", "handler"},
	"release":   {"deploy", "version", "changelog"},
	"migration": {"schema", "upgrade", "database"},
}

// queryAnalysis is the cached result of classifying and expanding a query.
type queryAnalysis struct {
	Intent string
	// Terms maps each expansion term to the query token that produced it,
	// for match explainability.
	Terms map[string]string
}

// analyzeQuery classifies intent and collects expansion terms from the
// static vocabulary. Pure function of the query string.
func analyzeQuery(query string) queryAnalysis {
	tokens := Tokenize(query)
	analysis := queryAnalysis{Intent: IntentLookup, Terms: map[string]string{}}

	tokenSet := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		tokenSet[tok] = true
	}

	for _, marker := range intentMarkers {
		for _, trigger := range marker.tokens {
			if tokenSet[trigger] {
				analysis.Intent = marker.intent
				break
			}
		}
		if analysis.Intent != IntentLookup {
			break
		}
	}

	for _, tok := range tokens {
		for _, term := range expansions[tok] {
			if !tokenSet[term] {
				analysis.Terms[term] = tok
			}
		}
	}
	for _, term := range intentContext[analysis.Intent] {
		if !tokenSet[term] {
			analysis.Terms[term] = analysis.Intent
		}
	}
	return analysis
}

// dictionary returns the known vocabulary: expansion keys, their terms, and
// intent context words. Used by the typo heuristic and for did-you-mean
// suggestions.
func dictionary() []string {
	seen := map[string]bool{}
	var words []string
	add := func(w string) {
		if !seen[w] {
			seen[w] = true
			words = append(words, w)
		}
	}
	for key, terms := range expansions {
		add(key)
		for _, t := range terms {
			add(t)
		}
	}
	for _, terms := range intentContext {
		for _, t := range terms {
			add(t)
		}
	}
	sort.Strings(words)
	return words
}

// Tokenize lowercases and splits a query into word tokens, dropping
// punctuation and single-character fragments.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var tokens []string
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
