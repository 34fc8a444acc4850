package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type sample struct {
	Action  string `json:"action" yaml:"action"`
	Version string `json:"version" yaml:"version"`
}

func (s sample) String() string {
	return "did " + s.Action + " " + s.Version
}

type rows [][]string

func (rows) Headers() []string { return []string{"ID", "ACTION"} }
func (r rows) Rows() [][]string { return r }

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf, FormatText).Write(sample{Action: "applied", Version: "v1.2"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := buf.String(); got != "did applied v1.2\n" {
		t.Errorf("Write() = %q", got)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf, FormatJSON).Write(sample{Action: "staged", Version: "v2"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var got sample
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got.Action != "staged" || got.Version != "v2" {
		t.Errorf("decoded = %+v", got)
	}
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf, FormatYAML).Write(sample{Action: "none"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var got sample
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, buf.String())
	}
	if got.Action != "none" {
		t.Errorf("decoded = %+v", got)
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	data := rows{{"2026-10-19-101500.000000", "applied"}, {"2026-10-19-101400.000000", "staged"}}
	if err := NewWriter(&buf, FormatText).Write(data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ID", "ACTION", "applied", "staged", "2026-10-19-101500.000000"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf, FormatText).Write(rows{}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := buf.String(); got != "(none)\n" {
		t.Errorf("Write() = %q", got)
	}
}

func TestTextfOnlyInTextMode(t *testing.T) {
	var text, structured bytes.Buffer
	_ = NewWriter(&text, FormatText).Textf("Wrote %s", "otaup.yaml")
	_ = NewWriter(&structured, FormatJSON).Textf("Wrote %s", "otaup.yaml")

	if text.String() != "Wrote otaup.yaml\n" {
		t.Errorf("text Textf() = %q", text.String())
	}
	if structured.Len() != 0 {
		t.Errorf("json Textf() should write nothing, got %q", structured.String())
	}
}
