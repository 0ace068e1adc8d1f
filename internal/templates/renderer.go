package templates

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	sprig "github.com/Masterminds/sprig/v3"
)

// Renderer compiles path templates with the sprig function set. Helpers that
// reach the process environment or filesystem are removed.
type Renderer struct {
	funcs template.FuncMap
}

// Template represents a compiled template ready for execution. Templates are
// safe for concurrent use.
type Template struct {
	name string
	tmpl *template.Template
}

func NewRenderer() *Renderer {
	funcs := sprig.TxtFuncMap()
	restricted := []string{
		"env",
		"expandenv",
		"readDir",
		"mustReadDir",
		"readFile",
		"mustReadFile",
		"glob",
	}
	for _, name := range restricted {
		delete(funcs, name)
	}

	r := &Renderer{funcs: make(template.FuncMap, len(funcs)+2)}
	for name, fn := range funcs {
		r.funcs[name] = fn
	}
	r.funcs["env"] = func(string) string { return "" }
	r.funcs["expandenv"] = func(input string) string {
		return os.Expand(input, func(string) string { return "" })
	}
	return r
}

// CompileInline parses an inline template source. Empty or whitespace-only
// sources return nil without error to simplify optional configuration fields.
func (r *Renderer) CompileInline(name, source string) (*Template, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil
	}
	if name == "" {
		name = "inline"
	}
	tmpl, err := template.New(name).Funcs(r.funcs).Option("missingkey=zero").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("templates: compile %q: %w", name, err)
	}
	return &Template{name: name, tmpl: tmpl}, nil
}

// CompileAll compiles each source, skipping blank entries. Names are derived
// from prefix and the source index.
func (r *Renderer) CompileAll(prefix string, sources []string) ([]*Template, error) {
	out := make([]*Template, 0, len(sources))
	for i, source := range sources {
		tmpl, err := r.CompileInline(fmt.Sprintf("%s[%d]", prefix, i), source)
		if err != nil {
			return nil, err
		}
		if tmpl != nil {
			out = append(out, tmpl)
		}
	}
	return out, nil
}

// Render executes the compiled template with the supplied data returning the
// rendered string.
func (t *Template) Render(data any) (string, error) {
	if t == nil {
		return "", errors.New("templates: nil template")
	}
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("templates: execute %q: %w", t.name, err)
	}
	return buf.String(), nil
}

func (t *Template) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}
