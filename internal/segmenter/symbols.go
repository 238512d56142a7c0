package segmenter

import (
	"regexp"
	"sort"
)

// assignmentPattern matches simple `name = call(...)` statements whose
// left-hand side becomes a produced symbol.
var assignmentPattern = regexp.MustCompile(`(?m)^[ \t]*([A-Za-z_][A-Za-z0-9_]*)[ \t]*=[ \t]*[A-Za-z_][A-Za-z0-9_.]*\(`)

// identifierPattern matches bare identifiers. Attribute accesses are filtered
// out separately by inspecting the preceding byte.
var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// stopwords are never treated as consumed symbols: Python keywords, common
// builtins, and the implicit receiver.
var stopwords = map[string]struct{}{
	"self": {}, "def": {}, "class": {}, "return": {}, "import": {}, "from": {},
	"as": {}, "with": {}, "for": {}, "in": {}, "if": {}, "elif": {}, "else": {},
	"while": {}, "break": {}, "continue": {}, "pass": {}, "not": {}, "and": {},
	"or": {}, "is": {}, "lambda": {}, "True": {}, "False": {}, "None": {},
	"try": {}, "except": {}, "finally": {}, "raise": {}, "yield": {}, "del": {},
	"global": {}, "nonlocal": {}, "assert": {},
	"range": {}, "len": {}, "zip": {}, "enumerate": {}, "print": {}, "str": {},
	"int": {}, "float": {}, "list": {}, "dict": {}, "set": {}, "tuple": {},
	"abs": {}, "min": {}, "max": {}, "sum": {}, "sorted": {}, "reversed": {},
}

// ExtractSymbols applies the regex heuristic to one slice body. Produced
// symbols are left-hand sides of simple call assignments; consumed symbols
// are all remaining bare identifiers minus the produced set and stopwords.
// This is a documented best-effort, not a parser: identifiers inside string
// literals or comments are not excluded.
func ExtractSymbols(code string) (produced, consumed []string) {
	producedSet := make(map[string]struct{})
	for _, match := range assignmentPattern.FindAllStringSubmatch(code, -1) {
		name := match[1]
		if name == "self" {
			continue
		}
		producedSet[name] = struct{}{}
	}

	consumedSet := make(map[string]struct{})
	for _, loc := range identifierPattern.FindAllStringIndex(code, -1) {
		name := code[loc[0]:loc[1]]
		if loc[0] > 0 && code[loc[0]-1] == '.' {
			continue // attribute access, not a bare identifier
		}
		if _, ok := stopwords[name]; ok {
			continue
		}
		if _, ok := producedSet[name]; ok {
			continue
		}
		consumedSet[name] = struct{}{}
	}

	return sortedKeys(producedSet), sortedKeys(consumedSet)
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
