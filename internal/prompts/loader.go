package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed *.md
var promptFS embed.FS

// Template represents a prompt template with metadata.
type Template struct {
	Name    string
	Content string
}

// Loader handles loading and rendering prompt templates.
type Loader struct {
	templates map[string]*Template
}

// NewLoader loads all embedded markdown prompt templates.
func NewLoader() (*Loader, error) {
	loader := &Loader{templates: make(map[string]*Template)}

	entries, err := promptFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		content, err := promptFS.ReadFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt file %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".md")
		loader.templates[name] = &Template{
			Name:    name,
			Content: strings.TrimRight(string(content), "\n"),
		}
	}

	return loader, nil
}

// Get returns a prompt template by name.
func (l *Loader) Get(name string) (*Template, error) {
	template, exists := l.templates[name]
	if !exists {
		return nil, fmt.Errorf("prompt template %q not found", name)
	}
	return template, nil
}

// Render renders a prompt template with {{var}} substitution.
func (l *Loader) Render(name string, variables map[string]string) (string, error) {
	template, err := l.Get(name)
	if err != nil {
		return "", err
	}

	content := template.Content
	for key, value := range variables {
		placeholder := fmt.Sprintf("{{%s}}", key)
		content = strings.ReplaceAll(content, placeholder, value)
	}

	if idx := strings.Index(content, "{{"); idx >= 0 {
		end := strings.Index(content[idx:], "}}")
		if end > 0 {
			return "", fmt.Errorf("prompt %q has unresolved variable %s", name, content[idx:idx+end+2])
		}
	}

	return content, nil
}
