package adapters

import (
	"strings"
	"testing"
)

func TestRegistry_FindAdapter(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		url  string
		want string
	}{
		{"https://en.wikipedia.org/wiki/Coffee", "wikipedia"},
		{"https://www.legislation.gov.uk/ukpga/2010/15", "legal"},
		{"https://example.org/law/penal-code", "legal"},
		{"https://example.org/news/story", "generic"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got := registry.FindAdapter(tt.url, "text/html").Name()
			if got != tt.want {
				t.Errorf("FindAdapter(%s) = %s, want %s", tt.url, got, tt.want)
			}
		})
	}
}

func TestGenericAdapter_Extract(t *testing.T) {
	page := `
	<html>
	<head>
		<title>Inflation report</title>
		<script>var text = "The system was first developed in 1995.";</script>
		<style>body { color: red; }</style>
	</head>
	<body>
		<nav><ul><li>Home</li><li>Politics</li></ul></nav>
		<article>
			<h1>Prices rose in May</h1>
			<p>Consumer prices rose 4.1% in May, the statistics office said.</p>
			<noscript>Enable JavaScript</noscript>
			<iframe src="https://ads.example.com">Ad</iframe>
			<p>Consumer prices rose 4.1% in May, the statistics office said.</p>
			<ul><li>Food prices led the increase.</li></ul>
		</article>
		<footer><p>Copyright 2026</p></footer>
	</body>
	</html>`

	got, err := NewRegistry().ExtractHTML(strings.NewReader(page), "https://example.org/news/inflation", "text/html")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if got.Adapter != "generic" {
		t.Errorf("Expected generic adapter, got %s", got.Adapter)
	}
	if got.Title != "Inflation report" {
		t.Errorf("Expected title from <title>, got %q", got.Title)
	}

	want := "Prices rose in May\n\nConsumer prices rose 4.1% in May, the statistics office said.\n\nFood prices led the increase."
	if got.Text != want {
		t.Errorf("Unexpected text:\n%s\nwant:\n%s", got.Text, want)
	}
}

func TestGenericAdapter_FallbackToVisibleText(t *testing.T) {
	page := `<html><body><div>Plain   text without paragraphs</div><script>hidden()</script></body></html>`

	got, err := NewRegistry().ExtractHTML(strings.NewReader(page), "https://example.org", "text/html")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got.Text != "Plain text without paragraphs" {
		t.Errorf("Expected visible text fallback, got %q", got.Text)
	}
}

func TestWikipediaAdapter_Extract(t *testing.T) {
	page := `
	<html>
	<head><title>Coffee - Wikipedia</title></head>
	<body>
		<h1 id="firstHeading">Coffee</h1>
		<div id="mw-content-text"><div class="mw-parser-output">
			<div class="hatnote">For other uses, see Coffee (disambiguation).</div>
			<table class="infobox"><tr><td>Type: Beverage</td></tr></table>
			<p>Coffee is a beverage brewed from roasted coffee beans.<sup class="reference"><a href="#cite-1">[1]</a></sup></p>
			<h2>History<span class="mw-editsection">[edit]</span></h2>
			<p>Coffee drinking was first recorded in Yemen in the 15th century.</p>
			<h2>References</h2>
			<ol class="references"><li>A source</li></ol>
			<p>Text after references is ignored.</p>
		</div></div>
	</body>
	</html>`

	got, err := NewRegistry().ExtractHTML(strings.NewReader(page), "https://en.wikipedia.org/wiki/Coffee", "text/html")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if got.Title != "Coffee" {
		t.Errorf("Expected title Coffee, got %q", got.Title)
	}

	want := "Coffee is a beverage brewed from roasted coffee beans.\n\nHistory\n\nCoffee drinking was first recorded in Yemen in the 15th century."
	if got.Text != want {
		t.Errorf("Unexpected text:\n%s\nwant:\n%s", got.Text, want)
	}
}

func TestLegalAdapter_Extract(t *testing.T) {
	page := `
	<html>
	<head><title>Data Protection Act</title></head>
	<body>
		<header><p>Site banner</p></header>
		<main>
			<h2>Section 1 Definitions</h2>
			<p>In this Act "data" is defined as information recorded in any form.</p>
			<h2>Section 2 Duties</h2>
			<ol><li>A controller shall keep records of processing.</li></ol>
		</main>
	</body>
	</html>`

	got, err := NewRegistry().ExtractHTML(strings.NewReader(page), "https://www.legislation.gov.uk/ukpga/2018/12", "text/html")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := "§ Section 1 Definitions\n\nIn this Act \"data\" is defined as information recorded in any form.\n\n§ Section 2 Duties\n\nA controller shall keep records of processing."
	if got.Text != want {
		t.Errorf("Unexpected text:\n%s\nwant:\n%s", got.Text, want)
	}
	if strings.Contains(got.Text, "Site banner") {
		t.Error("Expected header content to be skipped")
	}
}

func TestBaseAdapter_ExtractText(t *testing.T) {
	var base BaseAdapter
	doc, err := base.ParseHTML(`<div>Visible <span>inline</span><script>var x</script> text</div>`)
	if err != nil {
		t.Fatalf("Failed to parse HTML: %v", err)
	}

	if got := base.ExtractText(doc); got != "Visible inline text" {
		t.Errorf("Expected visible text only, got %q", got)
	}
}
