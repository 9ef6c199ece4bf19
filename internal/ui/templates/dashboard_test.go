package templates

import (
	"context"
	"strings"
	"testing"
)

func TestDashboard(t *testing.T) {
	var buf strings.Builder
	err := Dashboard(Page{Title: "Sales & Stock", Horizon: 14, Period: 30}).Render(context.Background(), &buf)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	html := buf.String()
	expected := []string{
		"<title>Sales &amp; Stock</title>",
		`id="forecast-content"`,
		`id="restock-content"`,
		`id="performance-content"`,
		`id="seasonality-content"`,
		`data-on-click="@get(&#39;/sse/refresh-all?horizon=14&amp;period=30&#39;)"`,
		`data-on-load="@get(&#39;/sse/forecast&#39;)"`,
		`href="/api/export/report.xlsx?period=30"`,
	}
	for _, want := range expected {
		if !strings.Contains(html, want) {
			t.Errorf("expected page to contain %q", want)
		}
	}
}

func TestDashboard_EscapesTitle(t *testing.T) {
	var buf strings.Builder
	if err := Dashboard(Page{Title: `<script>"x"</script>`}).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	html := buf.String()
	if strings.Contains(html, `<script>"x"`) {
		t.Error("title must be escaped")
	}
	if got := strings.Count(html, "&lt;script&gt;&#34;x&#34;&lt;/script&gt;"); got != 2 {
		t.Errorf("escaped title appears %d times, want 2", got)
	}
}

func TestDashboard_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf strings.Builder
	if err := Dashboard(Page{Title: "x"}).Render(ctx, &buf); err == nil {
		t.Error("expected error for cancelled context")
	}
}
