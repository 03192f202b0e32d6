// Package security holds the fail-closed content validators: prompt
// injection, path traversal, Unicode spoofing and raw HTML/script patterns.
package security

import (
	"fmt"
	"regexp"

	"github.com/dgallion1/mdguard/internal/errs"
	"github.com/dgallion1/mdguard/internal/profile"
)

// Reason explains a PromptInjectionCheck verdict.
type Reason string

const (
	ReasonNoMatch        Reason = "no_match"
	ReasonPatternMatch   Reason = "pattern_match"
	ReasonValidatorError Reason = "validator_error"
)

// PromptInjectionCheck is the result of one injection scan. Suspected is
// true exactly when Reason is not no_match.
type PromptInjectionCheck struct {
	Suspected bool   `json:"suspected"`
	Reason    Reason `json:"reason"`
	Pattern   string `json:"pattern,omitempty"`
	Error     string `json:"error,omitempty"`
	Err       error  `json:"-"`
}

func noMatch() PromptInjectionCheck {
	return PromptInjectionCheck{Reason: ReasonNoMatch}
}

func validatorFailure(err error) PromptInjectionCheck {
	verr := &errs.ValidatorError{Validator: "prompt_injection", Err: err}
	return PromptInjectionCheck{Suspected: true, Reason: ReasonValidatorError, Error: verr.Error(), Err: verr}
}

// Matcher is one injection pattern.
type Matcher interface {
	Name() string
	Match(text string) (bool, error)
}

type regexMatcher struct {
	name string
	re   *regexp.Regexp
}

func (m regexMatcher) Name() string { return m.name }

func (m regexMatcher) Match(text string) (bool, error) { return m.re.MatchString(text), nil }

var defaultMatchers = []Matcher{
	regexMatcher{"ignore_previous", regexp.MustCompile(`(?i)\b(ignore|disregard|forget)\s+(all\s+)?(the\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?|directions?)`)},
	regexMatcher{"system_role", regexp.MustCompile(`(?i)\bsystem\s*:\s*you\s+are\b`)},
	regexMatcher{"role_override", regexp.MustCompile(`(?i)\byou\s+are\s+now\s+(a|an|the|my|DAN|evil|unrestricted|unfiltered|jailbroken)\b`)},
	regexMatcher{"from_now_on", regexp.MustCompile(`(?i)\bfrom\s+now\s+on,?\s+you\s+(are|will|must|should)\b`)},
	regexMatcher{"new_instructions", regexp.MustCompile(`(?i)\bnew\s+(system\s+)?instructions?\s*:`)},
	regexMatcher{"override_rules", regexp.MustCompile(`(?i)\boverride\s+(your|all|the|any)\s+(previous\s+)?(instructions?|rules?|guidelines?|safety)`)},
	regexMatcher{"reveal_prompt", regexp.MustCompile(`(?i)\b(reveal|show|print|output|repeat)\s+(your\s+)?(system\s+)(prompt|instructions?)`)},
	regexMatcher{"jailbreak_mode", regexp.MustCompile(`(?i)\benter\s+(DAN|developer|god|sudo|admin)\s+mode\b`)},
	regexMatcher{"unrestricted_roleplay", regexp.MustCompile(`(?i)\b(pretend|act)\s+(like\s+)?(you\s+are|to\s+be|as)\s+.{0,30}(without|no)\s+(restrictions?|limits?|rules?|filters?)`)},
	regexMatcher{"chat_delimiter", regexp.MustCompile(`(?i)<\|?(system|endof(text|turn)|im_start|im_end)\|?>|\[/?INST\]|<<SYS>>`)},
}

// DefaultMatchers returns the built-in pattern set.
func DefaultMatchers() []Matcher {
	out := make([]Matcher, len(defaultMatchers))
	copy(out, defaultMatchers)
	return out
}

type injectionConfig struct {
	profile  string
	matchers []Matcher
}

// InjectionOption configures CheckPromptInjection.
type InjectionOption func(*injectionConfig)

// WithProfile selects the profile whose scan window applies.
func WithProfile(name string) InjectionOption {
	return func(c *injectionConfig) { c.profile = name }
}

// WithMatchers replaces the pattern set.
func WithMatchers(ms ...Matcher) InjectionOption {
	return func(c *injectionConfig) { c.matchers = ms }
}

// CheckPromptInjection scans the first N characters of text, where N is the
// profile's injection scan window (strict by default). Anything past the
// window is never reported. Internal failures, including an unknown
// profile, produce a suspected verdict with reason validator_error.
func CheckPromptInjection(text string, opts ...InjectionOption) (check PromptInjectionCheck) {
	cfg := injectionConfig{profile: string(profile.Default), matchers: defaultMatchers}
	for _, o := range opts {
		o(&cfg)
	}

	defer func() {
		if p := recover(); p != nil {
			check = validatorFailure(fmt.Errorf("panic: %v", p))
		}
	}()

	window, err := profile.InjectionScanChars(cfg.profile)
	if err != nil {
		return validatorFailure(err)
	}
	scan := truncateRunes(text, window)

	for _, m := range cfg.matchers {
		ok, err := m.Match(scan)
		if err != nil {
			return validatorFailure(fmt.Errorf("%s: %w", m.Name(), err))
		}
		if ok {
			return PromptInjectionCheck{Suspected: true, Reason: ReasonPatternMatch, Pattern: m.Name()}
		}
	}
	return noMatch()
}

// ScanAll checks each text independently and returns the first suspected
// verdict, or no_match.
func ScanAll(texts []string, opts ...InjectionOption) PromptInjectionCheck {
	for _, t := range texts {
		if c := CheckPromptInjection(t, opts...); c.Suspected {
			return c
		}
	}
	return noMatch()
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
