package page

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"io/fs"
)

// Renderer executes the page templates.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses every *.html template in fsys.
func NewRenderer(fsys fs.FS) (*Renderer, error) {
	tmpl, err := template.New("page").Funcs(template.FuncMap{
		"json": toJSON,
		"add":  func(a, b int) int { return a + b },
	}).ParseFS(fsys, "*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render writes the full page. Output is buffered so a template error never
// produces a half-written response.
func (r *Renderer) Render(w io.Writer, v View) error {
	return r.execute(w, "index.html", v)
}

// RenderBanner writes only the personalization banner fragment.
func (r *Renderer) RenderBanner(w io.Writer, v View) error {
	return r.execute(w, "banner", v)
}

func (r *Renderer) execute(w io.Writer, name string, v View) error {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, v); err != nil {
		return fmt.Errorf("execute %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
