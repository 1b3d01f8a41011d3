// Package rbks implements the RBKS v2 structured key grammar: a
// validating parser, a canonical-form normalizer, and the fallback
// chain used by upstream lookup code to walk from a fully-qualified key
// down to its base.
//
// A key is `segment(.segment){1..7}[<mod(,mod)*>]`, where each segment
// matches `[a-z][a-z0-9]*`. Modifiers classify into at most one of four
// known categories (language, environment, season, variant); anything
// else is a custom modifier, and multiple custom modifiers are allowed.
package rbks

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var segmentRe = regexp.MustCompile(`^[a-z][a-z0-9]*$`)

// category names a known modifier slot. Exactly one modifier may occupy
// each non-custom category.
type category int

const (
	catCustom category = iota
	catLanguage
	catEnvironment
	catSeason
	catVariant
)

var environments = map[string]bool{"dev": true, "prod": true, "staging": true, "test": true}
var seasons = map[string]bool{"christmas": true, "easter": true, "summer": true, "winter": true}
var variants = map[string]bool{"mobile": true, "desktop": true, "tablet": true}

var languageRe = regexp.MustCompile(`^[a-z]{2}$`)

func classify(mod string) category {
	switch {
	case environments[mod]:
		return catEnvironment
	case seasons[mod]:
		return catSeason
	case variants[mod]:
		return catVariant
	case languageRe.MatchString(mod):
		return catLanguage
	default:
		return catCustom
	}
}

// ErrInvalidKey reports a structural failure in a raw RBKS key.
type ErrInvalidKey struct {
	Key    string
	Reason string
}

func (e *ErrInvalidKey) Error() string {
	return fmt.Sprintf("rbks: invalid key %q: %s", e.Key, e.Reason)
}

// Key is a parsed and classified RBKS v2 key.
type Key struct {
	Base      string   // dot-joined segments, e.g. "page.home"
	Language  string   // "" if absent
	Env       string   // "" if absent
	Season    string   // "" if absent
	Variant   string   // "" if absent
	Custom    []string // sorted, deduplicated
}

// splitRaw splits a raw key into its base segment and the bracketed
// modifier list, if any.
func splitRaw(raw string) (base, modPart string, err error) {
	i := strings.IndexByte(raw, '<')
	if i == -1 {
		return raw, "", nil
	}
	if !strings.HasSuffix(raw, ">") {
		return "", "", fmt.Errorf("unterminated modifier list")
	}
	return raw[:i], raw[i+1 : len(raw)-1], nil
}

// Parse validates raw against the RBKS v2 grammar and classifies its
// modifiers. It rejects depth outside [2,8] and more than one modifier
// sharing a non-custom category.
func Parse(raw string) (*Key, error) {
	lower := strings.ToLower(raw)
	base, modPart, err := splitRaw(lower)
	if err != nil {
		return nil, &ErrInvalidKey{raw, err.Error()}
	}

	segments := strings.Split(base, ".")
	if len(segments) < 2 || len(segments) > 8 {
		return nil, &ErrInvalidKey{raw, fmt.Sprintf("depth %d outside [2,8]", len(segments))}
	}
	for _, s := range segments {
		if !segmentRe.MatchString(s) {
			return nil, &ErrInvalidKey{raw, fmt.Sprintf("invalid segment %q", s)}
		}
	}

	k := &Key{Base: strings.Join(segments, ".")}
	if modPart == "" {
		return k, nil
	}

	seen := map[category]bool{}
	custom := map[string]bool{}
	for _, m := range strings.Split(modPart, ",") {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		cat := classify(m)
		if cat != catCustom {
			if seen[cat] {
				return nil, &ErrInvalidKey{raw, fmt.Sprintf("multiple modifiers in category for %q", m)}
			}
			seen[cat] = true
		}
		switch cat {
		case catLanguage:
			k.Language = m
		case catEnvironment:
			k.Env = m
		case catSeason:
			k.Season = m
		case catVariant:
			k.Variant = m
		default:
			custom[m] = true
		}
	}
	for m := range custom {
		k.Custom = append(k.Custom, m)
	}
	slices.Sort(k.Custom)
	return k, nil
}

// Canonical returns the key's canonical string form: base, followed by
// its modifiers sorted lexicographically inside angle brackets (omitted
// entirely when there are no modifiers).
func (k *Key) Canonical() string {
	var mods []string
	if k.Language != "" {
		mods = append(mods, k.Language)
	}
	if k.Env != "" {
		mods = append(mods, k.Env)
	}
	if k.Season != "" {
		mods = append(mods, k.Season)
	}
	if k.Variant != "" {
		mods = append(mods, k.Variant)
	}
	mods = append(mods, k.Custom...)
	slices.Sort(mods)

	if len(mods) == 0 {
		return k.Base
	}
	return k.Base + "<" + strings.Join(mods, ",") + ">"
}

// Normalize parses raw and returns its canonical form. It is idempotent:
// Normalize(Normalize(k)) == Normalize(k) for any k accepted by Parse.
func Normalize(raw string) (string, error) {
	k, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return k.Canonical(), nil
}

// canonicalModifiers returns the sorted, comma-joined modifier string
// for an arbitrary subset of a key's recognized modifiers.
func canonicalModifiers(mods ...string) string {
	var present []string
	for _, m := range mods {
		if m != "" {
			present = append(present, m)
		}
	}
	slices.Sort(present)
	return strings.Join(present, ",")
}

// FallbackChain returns, most specific first, the sequence of modifier
// strings upstream lookup code should try in order: the full modifier
// set (every category, variant and custom included, matching
// Canonical), then the restrictions to language+environment,
// language+season, language alone, env+season, env alone, season
// alone, and finally the empty string. Duplicate steps (which arise
// when categories are absent from k) are dropped with first occurrence
// winning, so the chain may be shorter than 8 for a partially
// populated key.
func (k *Key) FallbackChain() []string {
	full := append([]string{k.Language, k.Env, k.Season, k.Variant}, k.Custom...)
	steps := []string{
		canonicalModifiers(full...),
		canonicalModifiers(k.Language, k.Env),
		canonicalModifiers(k.Language, k.Season),
		canonicalModifiers(k.Language),
		canonicalModifiers(k.Env, k.Season),
		canonicalModifiers(k.Env),
		canonicalModifiers(k.Season),
		"",
	}

	seen := make(map[string]bool, len(steps))
	var out []string
	for _, s := range steps {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
