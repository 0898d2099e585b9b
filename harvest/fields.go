package harvest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bizharvest/config"
)

// CardFields are the contact and identity fields of one detail page,
// extracted from rendered HTML. Missing fields stay zero-valued; selector
// misses are never errors.
type CardFields struct {
	Name         string
	Address      string
	Phone        string
	Website      string
	CompanyID    string
	Rating       float64
	Rubrics      []string
	OpeningHours []string
}

// FieldExtractor pulls CardFields out of a detail-page document using the
// configured selector chains.
type FieldExtractor struct {
	sel config.Selectors
}

// NewFieldExtractor creates a FieldExtractor.
func NewFieldExtractor(sel config.Selectors) *FieldExtractor {
	return &FieldExtractor{sel: sel}
}

// Extract reads all card fields from doc.
func (f *FieldExtractor) Extract(doc *goquery.Document) CardFields {
	fields := CardFields{
		Name:    firstText(doc.Selection, f.sel.Name),
		Address: firstText(doc.Selection, f.sel.Address),
		Phone:   f.phone(doc),
		Website: firstText(doc.Selection, f.sel.Website),
	}

	for _, sel := range f.sel.CompanyID {
		if id, ok := doc.Find(sel).First().Attr("data-id"); ok && id != "" {
			fields.CompanyID = id
			break
		}
	}

	if raw := firstTextOrContent(doc.Selection, f.sel.PageRating); raw != "" {
		if v, ok := parseRatingValue(raw); ok {
			fields.Rating = v
		}
	}

	fields.Rubrics = f.collectTexts(doc, f.sel.Rubrics)

	for _, sel := range f.sel.OpeningHours {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if content, ok := s.Attr("content"); ok && strings.TrimSpace(content) != "" {
				fields.OpeningHours = append(fields.OpeningHours, strings.TrimSpace(content))
			} else if text := normalizeText(s.Text()); text != "" {
				fields.OpeningHours = append(fields.OpeningHours, text)
			}
		})
		if len(fields.OpeningHours) > 0 {
			break
		}
	}

	return fields
}

func (f *FieldExtractor) phone(doc *goquery.Document) string {
	for _, sel := range f.sel.Phone {
		match := doc.Find(sel).First()
		if match.Length() == 0 {
			continue
		}
		if text := normalizeText(match.Text()); text != "" {
			return text
		}
		if href, ok := match.Attr("href"); ok && strings.HasPrefix(href, "tel:") {
			return strings.TrimPrefix(href, "tel:")
		}
	}
	return ""
}

// collectTexts gathers all distinct texts from the first matching selector.
func (f *FieldExtractor) collectTexts(doc *goquery.Document, selectors []string) []string {
	for _, sel := range selectors {
		matches := doc.Find(sel)
		if matches.Length() == 0 {
			continue
		}
		seen := make(map[string]struct{})
		var out []string
		matches.Each(func(_ int, s *goquery.Selection) {
			text := normalizeText(s.Text())
			if text == "" {
				return
			}
			if _, dup := seen[text]; dup {
				return
			}
			seen[text] = struct{}{}
			out = append(out, text)
		})
		return out
	}
	return nil
}
