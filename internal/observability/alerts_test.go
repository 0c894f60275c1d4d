package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestQuoteAlertRules(t *testing.T) {
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "quotes.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}

	var rules alertSpec
	if err := yaml.Unmarshal(data, &rules); err != nil {
		t.Fatalf("failed to unmarshal alert file: %v", err)
	}
	if len(rules.Groups) != 1 || rules.Groups[0].Name != "quotes" {
		t.Fatalf("expected a single quotes group, got %+v", rules.Groups)
	}

	expected := map[string]string{
		"QuoteSendFailures": "critical",
		"StaleSendAttempts": "warning",
		"EmailBounces":      "warning",
		"SlowPDFRender":     "warning",
	}
	group := rules.Groups[0]
	if len(group.Rules) != len(expected) {
		t.Fatalf("expected %d rules, got %d", len(expected), len(group.Rules))
	}

	runbook, err := os.ReadFile(filepath.Join("..", "..", "docs", "runbook-quotes.md"))
	if err != nil {
		t.Fatalf("read runbook: %v", err)
	}

	for _, rule := range group.Rules {
		severity, ok := expected[rule.Alert]
		if !ok {
			t.Fatalf("unexpected rule %q", rule.Alert)
		}
		if rule.Labels["severity"] != severity {
			t.Fatalf("rule %s severity mismatch: %s", rule.Alert, rule.Labels["severity"])
		}
		if rule.Annotations["summary"] == "" || rule.Annotations["description"] == "" {
			t.Fatalf("rule %s must include summary and description annotations", rule.Alert)
		}
		if !strings.Contains(rule.Expr, "dewater_") {
			t.Fatalf("rule %s must query a dewater metric", rule.Alert)
		}
		if rule.For == "" {
			t.Fatalf("rule %s must define a hold duration", rule.Alert)
		}
		link := rule.Annotations["runbook"]
		anchor := link[strings.Index(link, "#")+1:]
		heading := "## " + strings.ReplaceAll(anchor, "-", " ")
		if !strings.Contains(strings.ToLower(string(runbook)), heading) {
			t.Fatalf("rule %s runbook anchor %q has no matching heading", rule.Alert, anchor)
		}
	}
}
