package client

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseConfirmation extracts the banner LibCal shows after "Submit my
// Booking". An error banner is returned with a "site error:" prefix. Returns
// "" when the page carries neither.
func ParseConfirmation(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse confirmation page: %w", err)
	}

	if msg := firstText(doc, ".alert-danger, .s-lc-alert-danger, .has-error .help-block"); msg != "" {
		return "site error: " + msg, nil
	}
	return firstText(doc, ".alert-success, #s-lc-eq-success, .s-lc-eq-success, h1"), nil
}

// AvailableCells lists the labels of every "Available" cell on the page whose
// label contains dateLabel, in document order. An empty dateLabel lists all.
func AvailableCells(html, dateLabel string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar page: %w", err)
	}

	seen := make(map[string]bool)
	var cells []string
	doc.Find("[aria-label], [title]").Each(func(i int, s *goquery.Selection) {
		for _, attr := range []string{"aria-label", "title"} {
			v := strings.TrimSpace(s.AttrOr(attr, ""))
			if !strings.HasSuffix(v, " - Available") || seen[v] {
				continue
			}
			if dateLabel != "" && !strings.Contains(v, dateLabel) {
				continue
			}
			seen[v] = true
			cells = append(cells, v)
		}
	})
	return cells, nil
}

func firstText(doc *goquery.Document, selector string) string {
	var out string
	doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		out = strings.Join(strings.Fields(s.Text()), " ")
		return out == ""
	})
	return out
}
