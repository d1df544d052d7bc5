package intake

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidatorFunc checks a raw answer and returns a human-readable reason on
// failure. Validators are pure so they can be tested apart from the engine.
type ValidatorFunc func(raw string) error

// Validator registry names referenced by step descriptors.
const (
	ValidateShortText         = "short_text"
	ValidateEmail             = "email"
	ValidatePositiveNumber    = "positive_number"
	ValidateNonNegativeNumber = "non_negative_number"
	ValidateLongText          = "long_text"
)

var validators = map[string]ValidatorFunc{
	ValidateShortText:         minLength(2, "That looks a little short — could you type at least 2 characters?"),
	ValidateEmail:             emailShape,
	ValidatePositiveNumber:    number(false),
	ValidateNonNegativeNumber: number(true),
	ValidateLongText:          minLength(10, "Could you give me a bit more detail? A sentence or two helps a lot."),
}

// ValidatorByName resolves a registered validator. The empty name means the
// field is optional and always valid.
func ValidatorByName(name string) (ValidatorFunc, bool) {
	if name == "" {
		return nil, true
	}
	v, ok := validators[name]
	return v, ok
}

func minLength(n int, reason string) ValidatorFunc {
	return func(raw string) error {
		if len(strings.TrimSpace(raw)) < n {
			return fmt.Errorf("%s", reason)
		}
		return nil
	}
}

// emailShape requires local@domain.tld: an @ with a later dot and no
// whitespace. Full RFC parsing is the mail provider's problem.
func emailShape(raw string) error {
	s := strings.TrimSpace(raw)
	if strings.ContainsAny(s, " \t") {
		return fmt.Errorf("email addresses can't contain spaces — mind checking that?")
	}
	at := strings.Index(s, "@")
	if at <= 0 || at == len(s)-1 {
		return fmt.Errorf("that doesn't look like an email address — something like you@company.com")
	}
	domain := s[at+1:]
	dot := strings.LastIndex(domain, ".")
	if dot <= 0 || dot == len(domain)-1 {
		return fmt.Errorf("that doesn't look like an email address — something like you@company.com")
	}
	return nil
}

func number(allowZero bool) ValidatorFunc {
	return func(raw string) error {
		s := strings.TrimSpace(raw)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("I need a number here — digits only is fine")
		}
		if allowZero {
			if v < 0 {
				return fmt.Errorf("that number can't be negative")
			}
			return nil
		}
		if v <= 0 {
			return fmt.Errorf("I need a number greater than zero here")
		}
		return nil
	}
}
