package templates

//go:generate templ generate

const datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.5/bundles/datastar.js"

// Page carries what the dashboard shell needs to render.
type Page struct {
	Title   string
	Horizon int
	Period  int
}

type panel struct {
	id, heading, stream string
}

var panels = []panel{
	{"forecast-content", "Sales forecast", "/sse/forecast"},
	{"restock-content", "Restock recommendations", "/sse/restock"},
	{"performance-content", "Product performance", "/sse/performance"},
	{"seasonality-content", "Seasonal patterns", "/sse/seasonality"},
}
