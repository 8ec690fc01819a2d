package domain

import (
	"math/big"
	"sort"
	"strings"
	"time"
)

// Item maps a reel code to the product a visitor is sent to
type Item struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	DestinationURL string    `json:"destination_url"`
	ImageURL       string    `json:"image_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CompareCodes orders codes by their numeric value. Codes that are not
// numbers sort after numeric ones; equal values fall back to string order.
func CompareCodes(a, b string) int {
	na, okA := parseCode(a)
	nb, okB := parseCode(b)
	switch {
	case okA && okB:
		if c := na.Cmp(nb); c != 0 {
			return c
		}
	case okA:
		return -1
	case okB:
		return 1
	}
	return strings.Compare(a, b)
}

// SortItemsByCode sorts items ascending by numeric code, in place.
func SortItemsByCode(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return CompareCodes(items[i].Code, items[j].Code) < 0
	})
}

// NextCode suggests the code following the highest numeric code in use.
func NextCode(items []Item) string {
	highest := new(big.Int)
	for _, it := range items {
		if n, ok := parseCode(it.Code); ok && n.Cmp(highest) > 0 {
			highest = n
		}
	}
	return highest.Add(highest, big.NewInt(1)).String()
}

func parseCode(code string) (*big.Int, bool) {
	if code == "" {
		return nil, false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return nil, false
		}
	}
	n, ok := new(big.Int).SetString(code, 10)
	return n, ok
}
