// Package page renders the microsite from its content document and the
// optional personalization name.
package page

import (
	"strings"
	"time"

	"github.com/vakosile/living-case-study/internal/content"
	"github.com/vakosile/living-case-study/internal/counter"
)

// counterFrames is the number of intermediate values precomputed for each
// count-up animation.
const counterFrames = 40

// Personalization is the name-addressed part of the page. It is derived once
// from the exec query parameter.
type Personalization struct {
	Name         string
	Banner       string
	SectionTitle string
	Placeholder  string
	Caption      string
}

// CounterView is one impact number ready to render.
type CounterView struct {
	Display string   // final formatted value, shown without script or with reduced motion
	Caption string   // label with the figure removed
	Frames  []string // count-up values from zero to Display
}

// View is everything the page template needs. Rendering is a pure function of it.
type View struct {
	Doc             *content.Document
	Personalization *Personalization // nil when exec is absent
	Counters        []CounterView
	Year            int
}

// ExecName extracts the personalization name from the raw exec value.
// Whitespace-only values count as absent.
func ExecName(raw string) string {
	return strings.TrimSpace(raw)
}

// NewView builds the view model for one render.
func NewView(doc *content.Document, execName string, now time.Time) View {
	v := View{
		Doc:      doc,
		Counters: counters(doc.Impact.Numbers),
		Year:     now.Year(),
	}
	if execName != "" {
		v.Personalization = NewPersonalization(doc.Personalization, execName)
	}
	return v
}

// NewPersonalization fills the personalization templates with name.
func NewPersonalization(p content.Personalization, name string) *Personalization {
	return &Personalization{
		Name:         name,
		Banner:       content.Fill(p.Banner, name),
		SectionTitle: content.Fill(p.SectionTitle, name),
		Placeholder:  content.Fill(p.Placeholder, name),
		Caption:      p.Caption,
	}
}

func counters(numbers []content.ImpactNumber) []CounterView {
	out := make([]CounterView, 0, len(numbers))
	for _, n := range numbers {
		frames := make([]string, counterFrames+1)
		for i := 0; i <= counterFrames; i++ {
			frames[i] = counter.Frame(n.Value, n.Label, float64(i)/counterFrames)
		}
		out = append(out, CounterView{
			Display: counter.Format(n.Value, n.Label),
			Caption: counter.Caption(n.Label),
			Frames:  frames,
		})
	}
	return out
}
