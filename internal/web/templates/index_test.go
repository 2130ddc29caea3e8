package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestIndex(t *testing.T) {
	var buf bytes.Buffer
	if err := Index([]string{"orders.yaml", "people.txt"}, 20).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	body := buf.String()

	for _, want := range []string{
		`<option value="">(define table inline)</option>`,
		`<option value="orders.yaml">orders.yaml</option>`,
		`<option value="people.txt">people.txt</option>`,
		"Maximum upload size: 20 MB",
		`<script src="/static/app.js"></script>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestIndex_EscapesSchemaNames(t *testing.T) {
	var buf bytes.Buffer
	if err := Index([]string{`a"><script>.txt`}, 5).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(buf.String(), "<script>.txt") {
		t.Errorf("schema name not escaped: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "&lt;script&gt;.txt") {
		t.Errorf("escaped schema name missing: %s", buf.String())
	}
}

func TestIndex_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if err := Index(nil, 5).Render(ctx, &buf); err == nil {
		t.Error("Render() with cancelled context = nil, want error")
	}
}
