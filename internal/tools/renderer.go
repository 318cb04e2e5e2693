package tools

import (
	"bytes"
	"fmt"
	"text/template"
)

// RenderTemplateString executes tpl against data. Used for tool URLs such as
//
//	"{{ .BaseURL }}/res/v1/web/search?q={{ .Query | urlquery }}"
//
// and for prompt templates.
func RenderTemplateString(tpl string, data any) (string, error) {
	if data == nil {
		return tpl, nil
	}

	t, err := template.New("tpl").
		Option("missingkey=zero").
		Parse(tpl)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}

	return buf.String(), nil
}

// RenderTemplateMap renders every value of a map of templates, e.g. headers:
//
//	X-Subscription-Token: "{{ .APIKey }}"
func RenderTemplateMap(tpls map[string]string, data any) (map[string]string, error) {
	out := make(map[string]string, len(tpls))
	for k, v := range tpls {
		s, err := RenderTemplateString(v, data)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}
