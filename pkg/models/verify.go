package models

import (
	"fmt"
	"strings"
)

// VerifyTarget is the page aspect a verify_* action inspects
type VerifyTarget string

const (
	VerifyTargetTitle   VerifyTarget = "title"
	VerifyTargetText    VerifyTarget = "text"
	VerifyTargetBody    VerifyTarget = "body"
	VerifyTargetURL     VerifyTarget = "url"
	VerifyTargetElement VerifyTarget = "element"
	VerifyTargetHeading VerifyTarget = "heading"
	VerifyTargetLink    VerifyTarget = "link"
	VerifyTargetButton  VerifyTarget = "button"
	VerifyTargetInput   VerifyTarget = "input"
	VerifyTargetLabel   VerifyTarget = "label"
)

// VerifyOperation is the comparison a verify_* action applies
type VerifyOperation string

const (
	VerifyOpContains   VerifyOperation = "contains"
	VerifyOpEquals     VerifyOperation = "equals"
	VerifyOpStartsWith VerifyOperation = "startsWith"
	VerifyOpEndsWith   VerifyOperation = "endsWith"
	VerifyOpMatches    VerifyOperation = "matches"
	VerifyOpVisible    VerifyOperation = "visible"
	VerifyOpExists     VerifyOperation = "exists"
)

// VerifySpec is the parsed form of a verify_<target>_<operation> action name
type VerifySpec struct {
	Target    VerifyTarget
	Operation VerifyOperation
	Negated   bool
}

// verifyTargets maps every accepted target spelling to its canonical form.
// h1..h6 are aliases for heading1..heading6.
var verifyTargets = func() map[string]VerifyTarget {
	m := map[string]VerifyTarget{
		string(VerifyTargetTitle):   VerifyTargetTitle,
		string(VerifyTargetText):    VerifyTargetText,
		string(VerifyTargetBody):    VerifyTargetBody,
		string(VerifyTargetURL):     VerifyTargetURL,
		string(VerifyTargetElement): VerifyTargetElement,
		string(VerifyTargetHeading): VerifyTargetHeading,
		string(VerifyTargetLink):    VerifyTargetLink,
		string(VerifyTargetButton):  VerifyTargetButton,
		string(VerifyTargetInput):   VerifyTargetInput,
		string(VerifyTargetLabel):   VerifyTargetLabel,
	}
	for i := 1; i <= 6; i++ {
		level := VerifyTarget(fmt.Sprintf("heading%d", i))
		m[string(level)] = level
		m[fmt.Sprintf("h%d", i)] = level
	}
	return m
}()

// verifyOperations maps folded operation spellings (lowercased, underscores
// removed) to the canonical camelCase form, so starts_with and startsWith
// both resolve to startsWith.
var verifyOperations = map[string]VerifyOperation{
	"contains":   VerifyOpContains,
	"equals":     VerifyOpEquals,
	"startswith": VerifyOpStartsWith,
	"endswith":   VerifyOpEndsWith,
	"matches":    VerifyOpMatches,
	"visible":    VerifyOpVisible,
	"exists":     VerifyOpExists,
}

// ParseVerifyAction parses and normalizes a verify_<target>_<operation>
// action name. The operation accepts an optional not_ prefix and both
// snake_case and camelCase spellings.
func ParseVerifyAction(name string) (VerifySpec, error) {
	rest, ok := strings.CutPrefix(name, "verify_")
	if !ok {
		return VerifySpec{}, fmt.Errorf("not a verification action: %q", name)
	}
	target, opRaw, ok := strings.Cut(rest, "_")
	if !ok || target == "" || opRaw == "" {
		return VerifySpec{}, fmt.Errorf("malformed verification action %q: expected verify_<target>_<operation>", name)
	}

	canonical, ok := verifyTargets[strings.ToLower(target)]
	if !ok {
		return VerifySpec{}, fmt.Errorf("unknown verification target %q in action %q", target, name)
	}

	folded := strings.ToLower(strings.ReplaceAll(opRaw, "_", ""))
	negated := false
	if stripped, hasNot := strings.CutPrefix(folded, "not"); hasNot {
		negated = true
		folded = stripped
	}
	op, ok := verifyOperations[folded]
	if !ok {
		return VerifySpec{}, fmt.Errorf("unknown verification operation %q in action %q", opRaw, name)
	}

	return VerifySpec{Target: canonical, Operation: op, Negated: negated}, nil
}

// ActionName renders the canonical verify_<target>_<operation> form
func (v VerifySpec) ActionName() string {
	op := string(v.Operation)
	if v.Negated {
		op = "not_" + op
	}
	return fmt.Sprintf("verify_%s_%s", v.Target, op)
}

// HeadingLevel returns 1..6 for heading1..heading6 targets, 0 otherwise
func (v VerifySpec) HeadingLevel() int {
	s := string(v.Target)
	if strings.HasPrefix(s, "heading") && len(s) == len("heading")+1 {
		return int(s[len(s)-1] - '0')
	}
	return 0
}
