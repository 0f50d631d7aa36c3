package util

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// placeholderRe matches {name}, {name?} and tolerates doubled braces.
var placeholderRe = regexp.MustCompile(`{+[^{}]*}+`)

// identRe restricts placeholder names; anything else is left verbatim so
// JSON snippets and prose in braces survive.
var identRe = regexp.MustCompile(`^((app|user|temp):)?[A-Za-z_][A-Za-z0-9_]*$`)

const artifactPrefix = "artifact."

// MissingKeyError is returned when a required placeholder has no value.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("context variable not found: `%s`", e.Key)
}

// StateLookup resolves a state key.
type StateLookup func(key string) (any, bool)

// ArtifactLoader resolves an artifact name to its text.
type ArtifactLoader func(name string) (string, error)

// InjectState replaces {key} placeholders with state values and
// {artifact.name} with artifact text. A trailing "?" marks the placeholder
// optional so that a missing value renders as the empty string.
func InjectState(text string, lookup StateLookup, loadArtifact ArtifactLoader) (string, error) {
	if !strings.Contains(text, "{") {
		return text, nil
	}

	var firstErr error
	out := placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		if firstErr != nil {
			return match
		}

		name := strings.TrimSpace(strings.Trim(match, "{}"))
		optional := strings.HasSuffix(name, "?")
		name = strings.TrimSuffix(name, "?")

		if artifact, ok := strings.CutPrefix(name, artifactPrefix); ok {
			if loadArtifact == nil {
				if optional {
					return ""
				}
				firstErr = &MissingKeyError{Key: name}
				return match
			}
			body, err := loadArtifact(artifact)
			if err != nil {
				if optional {
					return ""
				}
				firstErr = fmt.Errorf("load artifact %q: %w", artifact, err)
				return match
			}
			return body
		}

		if !identRe.MatchString(name) {
			return match
		}

		v, ok := lookup(name)
		if !ok || v == nil {
			if optional {
				return ""
			}
			firstErr = &MissingKeyError{Key: name}
			return match
		}

		return stringify(v)
	})

	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case map[string]any, []any:
		raw, err := json.Marshal(x)
		if err == nil {
			return string(raw)
		}
	}
	return fmt.Sprintf("%v", v)
}
