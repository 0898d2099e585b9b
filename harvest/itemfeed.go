package harvest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyFeed is returned when the catalog response decoded cleanly but
// carried no item.
var ErrEmptyFeed = errors.New("item feed: no items in response")

// ItemFields are the authoritative business fields carried by the catalog
// API response fired when a detail page loads. When present they win over
// DOM-extracted fields.
type ItemFields struct {
	Name         string
	Address      string
	Phone        string
	Website      string
	Rating       float64
	ReviewsCount int
	Rubrics      []string
}

type itemFeedEnvelope struct {
	Result struct {
		Items []struct {
			Name        string `json:"name"`
			AddressName string `json:"address_name"`
			Rubrics     []struct {
				Name string `json:"name"`
			} `json:"rubrics"`
			ContactGroups []struct {
				Contacts []struct {
					Type  string `json:"type"`
					Value string `json:"value"`
					URL   string `json:"url"`
				} `json:"contacts"`
			} `json:"contact_groups"`
			Reviews struct {
				GeneralRating      float64 `json:"general_rating"`
				GeneralReviewCount int     `json:"general_review_count"`
			} `json:"reviews"`
		} `json:"items"`
	} `json:"result"`
}

// DecodeItemFeed parses a catalog items/byid response body. Any structural
// problem is reported as an error so the caller falls back to DOM
// extraction.
func DecodeItemFeed(body string) (*ItemFields, error) {
	var envelope itemFeedEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return nil, fmt.Errorf("item feed: decode: %w", err)
	}
	if len(envelope.Result.Items) == 0 {
		return nil, ErrEmptyFeed
	}

	item := envelope.Result.Items[0]
	fields := &ItemFields{
		Name:         strings.TrimSpace(item.Name),
		Address:      strings.TrimSpace(item.AddressName),
		Rating:       item.Reviews.GeneralRating,
		ReviewsCount: item.Reviews.GeneralReviewCount,
	}

	for _, rubric := range item.Rubrics {
		if name := strings.TrimSpace(rubric.Name); name != "" {
			fields.Rubrics = append(fields.Rubrics, name)
		}
	}

	for _, group := range item.ContactGroups {
		for _, contact := range group.Contacts {
			value := strings.TrimSpace(contact.Value)
			switch contact.Type {
			case "phone":
				if fields.Phone == "" && value != "" {
					fields.Phone = value
				}
			case "website":
				if fields.Website == "" {
					if contact.URL != "" {
						fields.Website = contact.URL
					} else {
						fields.Website = value
					}
				}
			}
		}
	}

	return fields, nil
}
