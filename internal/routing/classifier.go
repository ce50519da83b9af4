// Package routing maps task descriptions to complexity tiers and complexity
// tiers to execution configurations for the agent execution service.
package routing

import "strings"

// Complexity is a task's classified complexity tier.
type Complexity int

const (
	Simple Complexity = iota
	Medium
	Complex
	Critical
)

func (c Complexity) String() string {
	switch c {
	case Simple:
		return "simple"
	case Medium:
		return "medium"
	case Complex:
		return "complex"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Classifier maps a task description to a complexity tier.
// Implementations must be side-effect free; a description that matches
// nothing classifies as Medium rather than erroring.
type Classifier interface {
	Classify(description string) Complexity
}

// criticalKeywords indicate tasks where a wrong answer is expensive.
var criticalKeywords = []string{
	"validate",
	"falsify",
	"paper",
	"publish",
	"release",
	"production",
}

// complexKeywords indicate open-ended work needing extended reasoning.
var complexKeywords = []string{
	"debug",
	"design",
	"research",
	"architect",
	"investigate",
	"migrate",
}

// mediumKeywords indicate standard build-and-fix work.
var mediumKeywords = []string{
	"implement",
	"analyze",
	"build",
	"fix",
	"refactor",
	"test",
}

// simpleKeywords indicate mechanical, low-stakes work.
var simpleKeywords = []string{
	"format",
	"list",
	"rename",
	"typo",
	"comment",
	"summarize",
}

// KeywordClassifier classifies by trigger-phrase matching, checking tiers
// in priority order Critical > Complex > Medium > Simple so the most
// demanding match wins.
type KeywordClassifier struct {
	critical []string
	complex  []string
	medium   []string
	simple   []string
}

// NewKeywordClassifier creates a classifier with the default keyword tables.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		critical: append([]string{}, criticalKeywords...),
		complex:  append([]string{}, complexKeywords...),
		medium:   append([]string{}, mediumKeywords...),
		simple:   append([]string{}, simpleKeywords...),
	}
}

// Classify returns the highest-priority tier whose keyword table matches
// the description. No match defaults to Medium.
func (c *KeywordClassifier) Classify(description string) Complexity {
	lower := strings.ToLower(description)

	for _, kw := range c.critical {
		if strings.Contains(lower, kw) {
			return Critical
		}
	}
	for _, kw := range c.complex {
		if strings.Contains(lower, kw) {
			return Complex
		}
	}
	for _, kw := range c.medium {
		if strings.Contains(lower, kw) {
			return Medium
		}
	}
	for _, kw := range c.simple {
		if strings.Contains(lower, kw) {
			return Simple
		}
	}

	return Medium
}
