// Package responder makes rule-based decisions about session prompts
// using precompiled patterns. No network calls.
package responder

import (
	"regexp"
)

type patternRule struct {
	re     *regexp.Regexp
	reason string
}

type questionRule struct {
	re         *regexp.Regexp
	response   string
	confidence float64
}

// File operations and read-only commands that are almost always safe
// to approve.
var safePatterns = []struct{ pattern, reason string }{
	{`read\s+`, "read operation"},
	{`Read\s+file`, "file read"},
	{`cat\s+`, "cat file"},
	{`view\s+`, "view file"},
	{`show\s+`, "show file"},

	{`edit\s+.*\.(py|js|ts|tsx|jsx|go|rs|java|c|cpp|h|hpp|rb|php|swift|kt)$`, "code file edit"},
	{`Edit\s+.*\.(py|js|ts|tsx|jsx|go|rs|java|c|cpp|h|hpp|rb|php|swift|kt)$`, "code file edit"},

	{`edit\s+.*\.(md|txt|json|yaml|yml|toml|ini|cfg|conf)$`, "config/doc edit"},
	{`edit\s+.*\.(css|scss|less|html|xml|svg)$`, "web file edit"},

	{`git\s+(status|diff|log|branch|show|fetch)`, "safe git read"},
	{`git\s+add`, "git add"},

	{`(ls|pwd|echo|cat|head|tail|wc|grep|find|which|type|file)\s`, "safe shell command"},
	{`npm\s+(list|ls|outdated|audit)`, "npm read"},
	{`pip\s+(list|show|freeze)`, "pip read"},
	{`python\s+-m\s+pytest`, "run tests"},
	{`pytest\s+`, "run tests"},
	{`npm\s+(test|run\s+test)`, "run tests"},
	{`go\s+(test|vet|build)`, "run tests"},
	{`make\s+test`, "run tests"},
}

// Write-ish operations: approved, but at lower confidence.
var cautionPatterns = []struct{ pattern, reason string }{
	{`git\s+(commit|push|pull|merge|rebase)`, "git write operation"},
	{`npm\s+(install|update|uninstall)`, "npm package operation"},
	{`pip\s+(install|uninstall)`, "pip package operation"},
	{`write\s+`, "file write"},
	{`create\s+`, "file create"},
	{`mkdir\s+`, "create directory"},
}

// Destructive or credential-touching operations: always denied.
var dangerousPatterns = []struct{ pattern, reason string }{
	{`rm\s+-rf\s+/`, "recursive delete from root"},
	{`rm\s+-rf\s+~`, "recursive delete from home"},
	{`rm\s+-rf\s+\*`, "recursive delete wildcard"},
	{`delete\s+.*\.env`, "delete env file"},
	{`edit\s+.*\.env`, "edit env file"},
	{`>\s*/dev/`, "redirect to device"},
	{`chmod\s+777`, "insecure permissions"},
	{`curl.*\|\s*(bash|sh)`, "pipe curl to shell"},
	{`eval\s*\(`, "eval execution"},
	{`sudo\s+rm`, "sudo delete"},
	{`DROP\s+TABLE`, "SQL drop table"},
	{`DELETE\s+FROM.*WHERE\s+1`, "SQL delete all"},
	{`format\s+`, "format operation"},
}

var questionPatterns = []struct {
	pattern    string
	response   string
	confidence float64
}{
	{`what.*file.*name|name.*file|filename`,
		"Use a descriptive name following the project's naming convention", 0.7},
	{`what.*should.*call|what.*name.*should`,
		"Use a descriptive name that reflects its purpose", 0.6},

	{`where.*should.*(put|place|create|add)`,
		"Follow the existing project structure", 0.6},
	{`which.*directory|which.*folder`,
		"Use the most appropriate existing directory for this type of file", 0.6},

	{`which.*option|which.*one|which.*prefer`, "1", 0.5},
	{`option\s*[aA1].*or.*option\s*[bB2]`, "Option A", 0.5},

	{`do you want.*continue|shall.*continue|should.*continue`, "yes", 0.8},
	{`do you want.*proceed|shall.*proceed|should.*proceed`, "yes", 0.8},
	{`is.*okay|is.*ok|is.*fine|is.*correct`, "yes", 0.7},
	{`do you want.*install|should.*install`, "yes", 0.7},
	{`do you want.*create|should.*create`, "yes", 0.8},
	{`do you want.*add|should.*add`, "yes", 0.8},
	{`do you want.*update|should.*update`, "yes", 0.7},
	{`do you want.*run|should.*run`, "yes", 0.7},

	{`what.*format|which.*format`,
		"Use the standard format for this project", 0.5},

	{`how.*should.*(implement|do|handle|approach)`,
		"Use the simplest approach that follows existing patterns in the codebase", 0.5},

	{`what.*should|how.*should|which.*should`,
		"Use your best judgment based on the project context", 0.4},
}

var continuationTriggers = []string{
	`would you like me to continue`,
	`shall i (continue|proceed|go on)`,
	`do you want me to continue`,
	`ready to (continue|proceed)`,
	`continue\?`,
	`proceed\?`,
}

// Responder classifies proposed actions as safe or dangerous and
// answers questions from patterns alone.
type Responder struct {
	safe      []patternRule
	caution   []patternRule
	dangerous []patternRule
	questions []questionRule
	continues []*regexp.Regexp

	// defaultApprove decides unmatched permission prompts; the safe
	// default is a policy choice, not a constant.
	defaultApprove bool
}

// New compiles all patterns once. defaultApprove controls whether a
// permission prompt matching no pattern is approved or deferred.
func New(defaultApprove bool) *Responder {
	r := &Responder{defaultApprove: defaultApprove}
	for _, p := range safePatterns {
		r.safe = append(r.safe, patternRule{regexp.MustCompile(`(?i)` + p.pattern), p.reason})
	}
	for _, p := range cautionPatterns {
		r.caution = append(r.caution, patternRule{regexp.MustCompile(`(?i)` + p.pattern), p.reason})
	}
	for _, p := range dangerousPatterns {
		r.dangerous = append(r.dangerous, patternRule{regexp.MustCompile(`(?i)` + p.pattern), p.reason})
	}
	for _, q := range questionPatterns {
		r.questions = append(r.questions, questionRule{regexp.MustCompile(`(?i)` + q.pattern), q.response, q.confidence})
	}
	for _, t := range continuationTriggers {
		r.continues = append(r.continues, regexp.MustCompile(`(?i)`+t))
	}
	return r
}

// ClassifyAction decides whether a proposed action should be approved.
// Dangerous patterns win over safe ones.
func (r *Responder) ClassifyAction(actionText string) (approve bool, confidence float64, reason string) {
	for _, rule := range r.dangerous {
		if rule.re.MatchString(actionText) {
			return false, 0.95, "Dangerous: " + rule.reason
		}
	}
	for _, rule := range r.safe {
		if rule.re.MatchString(actionText) {
			return true, 0.9, "Safe: " + rule.reason
		}
	}
	for _, rule := range r.caution {
		if rule.re.MatchString(actionText) {
			return true, 0.7, "Caution: " + rule.reason
		}
	}
	return r.defaultApprove, 0.5, "Default: no specific pattern matched"
}

// AnswerQuestion generates an answer to a question using pattern
// matching over the question and its surrounding terminal context.
func (r *Responder) AnswerQuestion(question, context string) (response string, confidence float64, reason string) {
	fullText := context + "\n" + question

	for _, trigger := range r.continues {
		if trigger.MatchString(fullText) {
			return "continue", 0.9, "Continuation prompt detected"
		}
	}

	for _, rule := range r.questions {
		if rule.re.MatchString(fullText) {
			pattern := rule.re.String()
			if len(pattern) > 50 {
				pattern = pattern[:50]
			}
			return rule.response, rule.confidence, "Matched pattern: " + pattern
		}
	}

	return "yes", 0.3, "Fallback: no specific pattern matched"
}
