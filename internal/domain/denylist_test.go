package domain

import "testing"

func TestHostname(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://www.Example.org/path":  "example.org",
		"http://news.example.org:8080/": "news.example.org",
		"not a url":                     "",
		"":                              "",
	}
	for in, want := range cases {
		if got := Hostname(in); got != want {
			t.Fatalf("Hostname(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDenylist(t *testing.T) {
	t.Parallel()

	d := NewDenylist([]string{"eBay.com", " www.listverse.com ", ""})

	if !d.BlocksURL("https://www.ebay.com/itm/123") {
		t.Fatalf("expected ebay url to be blocked")
	}
	if !d.BlocksURL("https://m.listverse.com/top-10") {
		t.Fatalf("expected listverse subdomain to be blocked")
	}
	if d.BlocksURL("https://notebay.com/story") {
		t.Fatalf("suffix without dot must not match")
	}
	if !d.BlocksSource("eBay") || !d.BlocksSource("Listverse.com") {
		t.Fatalf("expected source names to be blocked")
	}
	if d.BlocksSource("The Guardian") {
		t.Fatalf("unexpected block of a news source")
	}
}
