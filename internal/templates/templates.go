// Package templates holds the onboarding files seeded into new storage
// paths and the prompt texts printed by `udo prompt`.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"text/template"
)

//go:embed all:files
var filesFS embed.FS

//go:embed prompts/*.tmpl
var promptsFS embed.FS

// File is one onboarding template, addressed relative to the storage root.
type File struct {
	Path    string
	Content string
}

// Files returns every onboarding template sorted by path.
func Files() ([]File, error) {
	var out []File
	err := fs.WalkDir(filesFS, "files", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := filesFS.ReadFile(path)
		if err != nil {
			return err
		}
		out = append(out, File{
			Path:    strings.TrimPrefix(path, "files/"),
			Content: string(data),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("templates: walk: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// PromptData fills the prompt templates.
type PromptData struct {
	WorkingPath string
	StoragePath string
	SessionsDir string
	ContextFile string
	HandoffFile string
}

// PromptKinds lists the prompt names accepted by Prompt.
func PromptKinds() []string {
	entries, err := promptsFS.ReadDir("prompts")
	if err != nil {
		return nil
	}
	kinds := make([]string, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, strings.TrimSuffix(e.Name(), ".tmpl"))
	}
	sort.Strings(kinds)
	return kinds
}

// Prompt renders the named prompt.
func Prompt(kind string, data PromptData) (string, error) {
	raw, err := promptsFS.ReadFile("prompts/" + kind + ".tmpl")
	if err != nil {
		return "", fmt.Errorf("templates: unknown prompt %q (have %s)", kind, strings.Join(PromptKinds(), ", "))
	}
	tmpl, err := template.New(kind).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("templates: parse %s: %w", kind, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("templates: render %s: %w", kind, err)
	}
	return buf.String(), nil
}

// MarksHandoff reports whether handing a prompt to the assistant counts as a
// handoff.
func MarksHandoff(kind string) bool {
	return kind == "quick-handoff" || kind == "full-handoff"
}
