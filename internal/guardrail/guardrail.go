// Package guardrail screens prompts and responses with fixed pattern
// batteries: prompt-injection idioms on the way in; XSS vectors, PII,
// leaked secrets, toxicity, and hallucination cues on the way out. The
// checks map to OWASP ASVS V5.3.1 (injection/output encoding) and V14.4.1
// (sensitive data in output). All entry points are pure text transforms.
package guardrail

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// BlockedResponse replaces the model output when a response is blocked.
const BlockedResponse = "[Content blocked by security guardrails]"

// ASVS requirement tags attached to screening results.
const (
	ASVSInjection = "V5.3.1"
	ASVSDataLeak  = "V14.4.1"
)

// Threat types reported on blocks.
const (
	ThreatPromptInjection = "prompt_injection"
	ThreatXSS             = "xss"
	ThreatPII             = "pii_leakage"
	ThreatSecrets         = "secrets_leakage"
	ThreatToxicity        = "toxic_content"
)

// Config tunes the screening behavior. The zero value is not useful; use
// DefaultConfig.
type Config struct {
	// StrictMode blocks on XSS vectors and toxicity. When false those
	// findings degrade to warnings.
	StrictMode bool

	// MaskPII redacts detected PII in place instead of blocking.
	MaskPII bool

	// ToxicityThreshold blocks output whose toxicity score reaches it,
	// strict mode only.
	ToxicityThreshold float64

	// HallucinationThreshold flags output whose hallucination score
	// exceeds it. Never blocks, only warns.
	HallucinationThreshold float64
}

// DefaultConfig returns the production screening defaults.
func DefaultConfig() Config {
	return Config{
		StrictMode:             true,
		MaskPII:                true,
		ToxicityThreshold:      0.7,
		HallucinationThreshold: 0.8,
	}
}

// InputResult is the outcome of screening a prompt.
type InputResult struct {
	Blocked    bool
	ThreatType string
	Patterns   []string
	ASVS       []string
}

// OutputResult is the outcome of screening a response. Response carries the
// sanitized text, or BlockedResponse when Blocked is set.
type OutputResult struct {
	Response           string
	Blocked            bool
	ThreatType         string
	Warnings           []string
	Confidence         float64
	ToxicityScore      float64
	HallucinationScore float64
	ASVS               []string
}

// Guardrail is a stateless screener with a fixed configuration.
type Guardrail struct {
	cfg  Config
	fold cases.Caser
}

// New builds a guardrail with the given configuration.
func New(cfg Config) *Guardrail {
	return &Guardrail{cfg: cfg, fold: cases.Fold()}
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions?`),
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?above`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?previous`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?previous`),
	regexp.MustCompile(`(?i)new\s+instructions?:`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a\s+)?DAN`),
	regexp.MustCompile(`(?i)developer\s+mode`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)reveal\s+(your\s+)?system\s+prompt`),
	regexp.MustCompile(`(?i)what\s+(are|is)\s+your\s+(initial\s+)?instructions?`),
}

var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe[^>]*>`),
	regexp.MustCompile(`(?i)eval\s*\(`),
}

// piiRule pairs a detector with its redaction token. Tokens never re-match
// any detector, which makes masking idempotent.
type piiRule struct {
	kind    string
	pattern *regexp.Regexp
	token   string
}

var piiRules = []piiRule{
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL_REDACTED]"},
	{"phone", regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`), "[PHONE_REDACTED]"},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN_REDACTED]"},
	{"credit_card", regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`), "[CARD_REDACTED]"},
	{"ip_address", regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP_REDACTED]"},
}

var secretPatterns = map[string]*regexp.Regexp{
	"api_key":     regexp.MustCompile(`(?i)(api[_-]?key|apikey)['"]?\s*[:=]\s*['"][a-zA-Z0-9_\-]{20,}['"]`),
	"jwt":         regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
	"password":    regexp.MustCompile(`(?i)(password|passwd|pwd)['"]?\s*[:=]\s*['"][^'"]{8,}['"]`),
	"private_key": regexp.MustCompile(`-----BEGIN (RSA |EC )?PRIVATE KEY-----`),
}

// toxicCategories assigns a per-keyword weight to each category. The score
// is the weighted sum over distinct matched keywords, capped at 1.
var toxicCategories = []struct {
	name     string
	weight   float64
	keywords []string
}{
	{"hate_speech", 0.4, []string{"hate", "racist", "nazi", "terrorist"}},
	{"violence", 0.3, []string{"kill", "murder", "assault", "attack"}},
	{"sexual", 0.25, []string{"porn", "sexual", "nsfw"}},
	{"profanity", 0.15, []string{"damn", "hell", "bastard", "crap"}},
}

var hallucinationCues = []*regexp.Regexp{
	regexp.MustCompile(`(?i)i\s+(don't|do\s+not)\s+have\s+access`),
	regexp.MustCompile(`(?i)i\s+cannot\s+access`),
	regexp.MustCompile(`(?i)as\s+an\s+ai`),
	regexp.MustCompile(`(?i)i'm\s+(just\s+)?an\s+ai`),
	regexp.MustCompile(`(?i)i\s+don't\s+actually\s+know`),
	regexp.MustCompile(`(?i)i'm\s+not\s+sure`),
	regexp.MustCompile(`(?i)it's\s+possible\s+that`),
	regexp.MustCompile(`(?i)this\s+might\s+not\s+be\s+accurate`),
}

var uncertaintyWords = []string{"maybe", "perhaps", "possibly", "might", "could be"}

var digitRE = regexp.MustCompile(`\d`)

// ScreenInput checks a prompt for injection idioms. A single match blocks.
func (g *Guardrail) ScreenInput(prompt string) InputResult {
	var matched []string
	for _, p := range injectionPatterns {
		if p.MatchString(prompt) {
			matched = append(matched, p.String())
		}
	}
	if len(matched) == 0 {
		return InputResult{}
	}
	return InputResult{
		Blocked:    true,
		ThreatType: ThreatPromptInjection,
		Patterns:   matched,
		ASVS:       []string{ASVSInjection},
	}
}

// ScreenOutput validates a model response against the original prompt and
// the retrieval context it was generated with, if any. Checks run in a
// fixed order: XSS, PII, secrets, toxicity, hallucination, confidence.
// The first blocking check wins; later checks still contribute warnings
// and scores.
func (g *Guardrail) ScreenOutput(prompt, response string, ragContext []string) OutputResult {
	res := OutputResult{Response: response}

	if g.detectXSS(response) {
		res.ASVS = append(res.ASVS, ASVSInjection)
		if g.cfg.StrictMode {
			g.block(&res, ThreatXSS)
		} else {
			res.Warnings = append(res.Warnings, "potential XSS vectors in response")
		}
	}

	if g.detectPII(response) {
		res.ASVS = appendUnique(res.ASVS, ASVSDataLeak)
		if g.cfg.MaskPII {
			if !res.Blocked {
				res.Response = g.MaskPII(res.Response)
			}
			res.Warnings = append(res.Warnings, "PII detected and masked")
		} else {
			g.block(&res, ThreatPII)
		}
	}

	if g.detectSecrets(response) {
		res.ASVS = appendUnique(res.ASVS, ASVSDataLeak)
		g.block(&res, ThreatSecrets)
	}

	res.ToxicityScore = g.scoreToxicity(response)
	if res.ToxicityScore >= g.cfg.ToxicityThreshold {
		if g.cfg.StrictMode {
			g.block(&res, ThreatToxicity)
		} else {
			res.Warnings = append(res.Warnings, "potentially toxic content")
		}
	}

	res.HallucinationScore = g.scoreHallucination(response, ragContext)
	if res.HallucinationScore > g.cfg.HallucinationThreshold {
		res.Warnings = append(res.Warnings, "high hallucination risk")
	}

	res.Confidence = g.scoreConfidence(response, ragContext)
	return res
}

// MaskPII redacts every PII match with its labeled token. Masking the
// result again is a no-op.
func (g *Guardrail) MaskPII(text string) string {
	for _, rule := range piiRules {
		text = rule.pattern.ReplaceAllString(text, rule.token)
	}
	return text
}

// block marks the result blocked with the first threat that fired.
func (g *Guardrail) block(res *OutputResult, threat string) {
	if res.Blocked {
		return
	}
	res.Blocked = true
	res.ThreatType = threat
	res.Response = BlockedResponse
}

func (g *Guardrail) detectXSS(text string) bool {
	for _, p := range xssPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func (g *Guardrail) detectPII(text string) bool {
	for _, rule := range piiRules {
		if rule.pattern.MatchString(text) {
			return true
		}
	}
	return false
}

func (g *Guardrail) detectSecrets(text string) bool {
	for _, p := range secretPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// scoreToxicity sums the per-category keyword weights over the case-folded
// text and caps the result at 1.
func (g *Guardrail) scoreToxicity(text string) float64 {
	folded := g.fold.String(text)
	score := 0.0
	for _, cat := range toxicCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(folded, kw) {
				score += cat.weight
			}
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

// scoreHallucination combines uncertainty cues with missing retrieval
// grounding: 0.2 per cue, plus 0.3 when a context was supplied but no
// snippet of it appears verbatim in the response.
func (g *Guardrail) scoreHallucination(response string, ragContext []string) float64 {
	score := 0.0
	for _, p := range hallucinationCues {
		if p.MatchString(response) {
			score += 0.2
		}
	}
	if len(ragContext) > 0 && !g.grounded(response, ragContext) {
		score += 0.3
	}
	if score > 1 {
		score = 1
	}
	return score
}

// grounded reports whether any context snippet appears verbatim in the
// response, compared case-folded.
func (g *Guardrail) grounded(response string, ragContext []string) bool {
	folded := g.fold.String(response)
	for _, doc := range ragContext {
		if doc == "" {
			continue
		}
		if strings.Contains(folded, g.fold.String(doc)) {
			return true
		}
	}
	return false
}

// scoreConfidence aggregates length, numeric specificity, retrieval
// grounding, and uncertainty-word density into [0, 1].
func (g *Guardrail) scoreConfidence(response string, ragContext []string) float64 {
	confidence := 0.5

	switch {
	case len(response) < 50:
		confidence -= 0.2
	case len(response) > 500:
		confidence += 0.1
	}

	if digitRE.MatchString(response) {
		confidence += 0.1
	}

	if len(ragContext) > 0 {
		confidence += 0.2
	}

	folded := g.fold.String(response)
	uncertain := 0
	for _, w := range uncertaintyWords {
		if strings.Contains(folded, w) {
			uncertain++
		}
	}
	if uncertain > 2 {
		confidence -= 0.1 * float64(uncertain)
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
