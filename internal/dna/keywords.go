package dna

import "github.com/jhonnyo88/devteam-sub003/internal/score"

// Keyword buckets per design principle. Design principles score additively:
// every bucket that matches raises the score, silence raises an issue.
var designBuckets = map[string][]score.Bucket{
	"pedagogical_value": {
		{Name: "learning", Keywords: []string{
			"learn", "teach", "skill", "training", "practice", "understand",
			"knowledge", "pedagogical", "education", "instruct",
		}},
		{Name: "engagement", Keywords: []string{
			"engage", "interactive", "exercise", "scenario", "challenge",
			"feedback", "progress", "reward",
		}},
		{Name: "assessment", Keywords: []string{
			"assess", "quiz", "evaluate", "measure", "score", "certificate",
			"completion",
		}},
	},
	"policy_to_practice": {
		{Name: "policy", Keywords: []string{
			"policy", "regulation", "compliance", "guideline", "procedure",
			"law", "standard", "mandate", "directive",
		}},
		{Name: "practice", Keywords: []string{
			"practice", "apply", "everyday", "workplace", "real-world",
			"case", "situation", "hands-on",
		}},
		{Name: "municipal", Keywords: []string{
			"municipal", "public sector", "administration", "civil servant",
			"government", "kommun",
		}},
	},
	"holistic_thinking": {
		{Name: "context", Keywords: []string{
			"context", "overall", "big picture", "holistic", "ecosystem",
			"end-to-end", "organisation", "organization",
		}},
		{Name: "integration", Keywords: []string{
			"integrate", "workflow", "process", "connect", "dependency",
			"impact", "consequence",
		}},
		{Name: "stakeholder", Keywords: []string{
			"stakeholder", "colleague", "team", "citizen", "user group",
			"department",
		}},
	},
	"professional_tone": {
		{Name: "tone", Keywords: []string{
			"professional", "formal", "respectful", "clear", "concise",
			"courteous", "neutral",
		}},
		{Name: "clarity", Keywords: []string{
			"plain language", "terminology", "consistent", "accurate",
			"unambiguous", "structured",
		}},
		{Name: "workplace", Keywords: []string{
			"workplace", "work context", "office", "duty", "responsibility",
			"role",
		}},
	},
}

// efficiencyBucket feeds the keyword half of time_respect; the other half is
// the hard time-constraint check.
var efficiencyBucket = score.Bucket{Name: "efficiency", Keywords: []string{
	"quick", "efficient", "streamlined", "minutes", "concise", "focused",
	"short", "immediate", "fast", "micro",
}}

// Architecture principles are optimistic: they start at a default score and
// only red-flag matches pull them down.
var architectureRedFlags = map[string]score.Bucket{
	"api_first": {Name: "api_first red flags", Keywords: []string{
		"direct database access", "bypass api", "tight coupling",
		"hardcoded endpoint", "sql in frontend", "shared database",
	}},
	"stateless_backend": {Name: "stateless_backend red flags", Keywords: []string{
		"session state", "sticky session", "in-memory session",
		"server session", "global state", "stateful backend",
	}},
	"separation_of_concerns": {Name: "separation_of_concerns red flags", Keywords: []string{
		"business logic in ui", "mixed concerns", "god object",
		"monolith component", "ui writes database",
	}},
	"simplicity_first": {Name: "simplicity_first red flags", Keywords: []string{
		"over-engineered", "premature optimization", "complex abstraction",
		"custom framework", "microservice per feature",
	}},
}

// recommendations is the static lookup used when a principle class has
// violations. No deeper reasoning lives here on purpose.
var recommendations = map[string]string{
	"pedagogical_value":      "add explicit learning objectives and practice elements to the feature description",
	"policy_to_practice":     "tie the feature to a concrete policy, regulation or workplace procedure",
	"time_respect":           "cut scope or split the feature so a session fits within 10 minutes",
	"holistic_thinking":      "describe how the feature fits surrounding workflows and stakeholders",
	"professional_tone":      "rework copy toward clear, formal workplace language",
	"api_first":              "route all client access through the documented API surface",
	"stateless_backend":      "move session state to the client or an external store",
	"separation_of_concerns": "split presentation, business logic and persistence into separate components",
	"simplicity_first":       "prefer the simplest design that satisfies the acceptance criteria",
}
