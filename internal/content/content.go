// Package content loads the static presentation data for the microsite.
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed content.yaml
var defaultDocument []byte

// Document is the full set of presentation data rendered by the page.
type Document struct {
	Owner           Owner           `yaml:"owner"`
	Hero            Hero            `yaml:"hero"`
	Origin          string          `yaml:"origin"`
	Blueprint       CardSection     `yaml:"blueprint"`
	TrustedBy       []string        `yaml:"trusted_by"`
	Impact          Impact          `yaml:"impact"`
	Testimonials    []Testimonial   `yaml:"testimonials"`
	Authority       CardSection     `yaml:"authority"`
	Fit             CardSection     `yaml:"fit"`
	Contact         Contact         `yaml:"contact"`
	Personalization Personalization `yaml:"personalization"`
	Assistant       Assistant       `yaml:"assistant"`
}

// Owner describes the person the microsite is about.
type Owner struct {
	Name      string `yaml:"name"`
	ShortName string `yaml:"short_name"`
	Portrait  string `yaml:"portrait"`
	Email     string `yaml:"email"`
	Phone     string `yaml:"phone"`
	LinkedIn  string `yaml:"linkedin"`
}

// Link is a labelled anchor.
type Link struct {
	Label string `yaml:"label"`
	Href  string `yaml:"href"`
}

// Hero is the first screen of the page.
type Hero struct {
	Headline     string `yaml:"headline"`
	Subheadline  string `yaml:"subheadline"`
	Pitch        string `yaml:"pitch"`
	PrimaryCTA   Link   `yaml:"primary_cta"`
	SecondaryCTA Link   `yaml:"secondary_cta"`
}

// Card is a titled block of copy. Only the fields a section uses are set.
type Card struct {
	Title     string   `yaml:"title"`
	Body      string   `yaml:"body"`
	Lines     []string `yaml:"lines"`
	Tags      []string `yaml:"tags"`
	LinkLabel string   `yaml:"link_label"`
	Href      string   `yaml:"href"`
}

// CardSection is a titled grid of cards.
type CardSection struct {
	Title string `yaml:"title"`
	Cards []Card `yaml:"cards"`
}

// ImpactNumber is one animated counter. Label carries the unit hint.
type ImpactNumber struct {
	Value float64 `yaml:"value"`
	Label string  `yaml:"label"`
}

// Impact is the quantified-results section.
type Impact struct {
	Title   string         `yaml:"title"`
	Numbers []ImpactNumber `yaml:"numbers"`
}

// Testimonial is a quote with attribution.
type Testimonial struct {
	Quote  string `yaml:"quote"`
	Author string `yaml:"author"`
	Role   string `yaml:"role"`
}

// Contact is the closing call to action.
type Contact struct {
	Title      string `yaml:"title"`
	Body       string `yaml:"body"`
	CTA        Link   `yaml:"cta"`
	Postscript string `yaml:"postscript"`
	Footer     string `yaml:"footer"`
}

// Personalization holds the name-addressed templates. "{name}" is replaced
// with the executive's name.
type Personalization struct {
	Banner       string `yaml:"banner"`
	SectionTitle string `yaml:"section_title"`
	Placeholder  string `yaml:"placeholder"`
	Caption      string `yaml:"caption"`
}

// Assistant holds the widget persona and its fixed texts.
type Assistant struct {
	Name                  string `yaml:"name"`
	Greeting              string `yaml:"greeting"`
	Placeholder           string `yaml:"placeholder"`
	Context               string `yaml:"context"`
	FallbackUnprocessable string `yaml:"fallback_unprocessable"`
	FallbackUnavailable   string `yaml:"fallback_unavailable"`
}

// Fill substitutes name into a personalization template.
func Fill(template, name string) string {
	return strings.ReplaceAll(template, "{name}", name)
}

// Default returns the embedded document.
func Default() (*Document, error) {
	return Parse(defaultDocument)
}

// Load returns the document at path, or the embedded one when path is empty.
func Load(path string) (*Document, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid content: %w", err)
	}
	return &doc, nil
}

// Validate checks the fields the page and the assistant cannot do without.
func (d *Document) Validate() error {
	var errs []error
	if d.Owner.Name == "" {
		errs = append(errs, errors.New("owner.name is required"))
	}
	if strings.TrimSpace(d.Assistant.Context) == "" {
		errs = append(errs, errors.New("assistant.context is required"))
	}
	if strings.TrimSpace(d.Assistant.Greeting) == "" {
		errs = append(errs, errors.New("assistant.greeting is required"))
	}
	if d.Personalization.Banner == "" || d.Personalization.SectionTitle == "" {
		errs = append(errs, errors.New("personalization.banner and personalization.section_title are required"))
	}
	return errors.Join(errs...)
}
