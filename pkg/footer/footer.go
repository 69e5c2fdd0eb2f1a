package footer

import (
	"bytes"
	"html/template"
)

// Link describes a navigation entry displayed inside the footer.
type Link struct {
	Label string
	URL   string
}

// Config captures the markup and style hooks required to render the footer.
type Config struct {
	ElementID     string
	BaseClass     string
	LinkClass     string
	PrefixText    string
	HomeLinkHref  string
	HomeLinkLabel string
	Links         []Link
}

var (
	footerTemplate = template.Must(template.New("footer").Option("missingkey=error").Parse(`<footer id="{{.ElementID}}" class="{{.BaseClass}}" dir="rtl">
  <span>{{.PrefixText}}</span>
  <a class="{{.LinkClass}}" href="{{.HomeLinkHref}}">{{.HomeLinkLabel}}</a>
  {{range .Links}}
  <a class="{{$.LinkClass}}" href="{{.URL}}" target="_blank" rel="noopener noreferrer">{{.Label}}</a>
  {{end}}
</footer>`))
)

// Render returns the footer HTML for the provided configuration.
func Render(config Config) (template.HTML, error) {
	var buffer bytes.Buffer
	if err := footerTemplate.Execute(&buffer, config); err != nil {
		return "", err
	}
	return template.HTML(buffer.String()), nil
}
