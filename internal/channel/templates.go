package channel

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Template identifiers shipped in templates.yaml.
const (
	TemplateComplaintCreated       = "complaint_created"
	TemplateComplaintStatusChanged = "complaint_status_changed"
	TemplateComplaintAssigned      = "complaint_assigned"
	TemplateComplaintComment       = "complaint_comment"
	TemplateComplaintWorkUpdate    = "complaint_work_update"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

type templateSpec struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type compiledTemplate struct {
	subject *template.Template
	body    *template.Template
}

// TemplateSet renders email subjects and bodies by template id.
type TemplateSet struct {
	templates map[string]compiledTemplate
}

// LoadTemplates parses a YAML document mapping ids to subject/body templates.
func LoadTemplates(data []byte) (*TemplateSet, error) {
	var specs map[string]templateSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	set := &TemplateSet{templates: make(map[string]compiledTemplate, len(specs))}
	for id, spec := range specs {
		subject, err := template.New(id + ".subject").Option("missingkey=zero").Parse(spec.Subject)
		if err != nil {
			return nil, fmt.Errorf("template %s subject: %w", id, err)
		}
		body, err := template.New(id + ".body").Option("missingkey=zero").Parse(spec.Body)
		if err != nil {
			return nil, fmt.Errorf("template %s body: %w", id, err)
		}
		set.templates[id] = compiledTemplate{subject: subject, body: body}
	}
	return set, nil
}

// DefaultTemplates loads the embedded template set.
func DefaultTemplates() (*TemplateSet, error) {
	return LoadTemplates(defaultTemplatesYAML)
}

// Render executes the named template. Unknown ids are permanent failures.
func (s *TemplateSet) Render(id string, vars map[string]any) (string, string, error) {
	tmpl, ok := s.templates[id]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q: %w", id, ErrPermanent)
	}
	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, vars); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", id, ErrPermanent)
	}
	if err := tmpl.body.Execute(&body, vars); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", id, ErrPermanent)
	}
	return strings.TrimSpace(subject.String()), body.String(), nil
}
