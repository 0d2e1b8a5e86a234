// Package prompts loads and renders the LLM prompt templates. Templates are
// plain text with {placeholder} markers; defaults are embedded in the binary
// and can be overridden by files in a prompts directory.
package prompts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/reviewloop/reviewloop/internal/models"
)

//go:embed templates/*.md
var embedded embed.FS

var placeholderRe = regexp.MustCompile(`\{([a-z_][a-z0-9_]*)\}`)

// Library resolves template names to text, preferring OverrideDir files over
// the embedded defaults, and caches what it loads.
type Library struct {
	OverrideDir string

	mu    sync.RWMutex
	cache map[string]string
}

// NewLibrary creates a template library. overrideDir may be empty.
func NewLibrary(overrideDir string) *Library {
	return &Library{
		OverrideDir: overrideDir,
		cache:       make(map[string]string),
	}
}

// Load returns the raw template text for a name like "intent_analysis"
func (l *Library) Load(name string) (string, error) {
	l.mu.RLock()
	if text, ok := l.cache[name]; ok {
		l.mu.RUnlock()
		return text, nil
	}
	l.mu.RUnlock()

	text, err := l.read(name)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	l.cache[name] = text
	l.mu.Unlock()
	return text, nil
}

func (l *Library) read(name string) (string, error) {
	if l.OverrideDir != "" {
		path := filepath.Join(l.OverrideDir, name+".md")
		if data, err := os.ReadFile(path); err == nil {
			return string(data), nil
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read prompt override %s: %w", path, err)
		}
	}

	data, err := embedded.ReadFile("templates/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("unknown prompt template %q: %w", name, err)
	}
	return string(data), nil
}

// Render loads a template and substitutes every {placeholder} from vars.
// A placeholder with no matching var is an error; extra vars are ignored.
func (l *Library) Render(name string, vars map[string]string) (string, error) {
	text, err := l.Load(name)
	if err != nil {
		return "", err
	}
	return Substitute(text, vars)
}

// Substitute replaces {placeholder} markers in text with values from vars
func Substitute(text string, vars map[string]string) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := vars[key]
		if !ok {
			missing = append(missing, key)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt template has unresolved placeholders: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// ExpertTemplateName maps a risk type to its expert template, falling back
// to the generic expert template when no specialized one exists
func (l *Library) ExpertTemplateName(rt models.RiskType) string {
	name := "expert_" + string(rt)
	if _, err := l.Load(name); err == nil {
		return name
	}
	return "expert_generic"
}
