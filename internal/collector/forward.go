package collector

import (
	"fmt"
	"net/url"
	"strings"
)

// Transform wraps an upstream URL into a forwarding endpoint's scheme.
// Template placeholders: {url} is replaced by the query-escaped target,
// {raw} by the target verbatim.
type Transform struct {
	Name     string
	Template string
}

// Direct sends the request to the upstream without forwarding.
var Direct = Transform{Name: "direct", Template: "{raw}"}

// Apply returns the forwarded URL for target.
func (t Transform) Apply(target string) string {
	s := strings.ReplaceAll(t.Template, "{url}", url.QueryEscape(target))
	return strings.ReplaceAll(s, "{raw}", target)
}

// ValidateTemplate checks that a template references the target.
func ValidateTemplate(tpl string) error {
	if !strings.Contains(tpl, "{url}") && !strings.Contains(tpl, "{raw}") {
		return fmt.Errorf("template %q has no {url} or {raw} placeholder", tpl)
	}
	return nil
}
