package models

import "fmt"

// -- Categories --

// Category identifies a scoring category. Values are stable wire ids; the
// declaration order below is the order categories render on the report.
type Category uint8

const (
	CategoryFQ Category = iota + 1
	CategoryUserAuditing
	CategoryAccountPolicy
	CategoryLocalPolicy
	CategoryDefensiveCountermeasure
	CategoryUncategorized
	CategoryServiceAuditing
	CategoryOSUpdate
	CategoryAppUpdate
	CategoryProhibitedFile
	CategoryUnwantedSoftware
	CategoryMalware
	CategoryAppSec

	categoryMax
)

var categoryNames = map[Category]string{
	CategoryFQ:                      "fq",
	CategoryUserAuditing:            "user_auditing",
	CategoryAccountPolicy:           "account_policy",
	CategoryLocalPolicy:             "local_policy",
	CategoryDefensiveCountermeasure: "defensive_countermeasure",
	CategoryUncategorized:           "uncategorized",
	CategoryServiceAuditing:         "service_auditing",
	CategoryOSUpdate:                "os_update",
	CategoryAppUpdate:               "app_update",
	CategoryProhibitedFile:          "prohibited_file",
	CategoryUnwantedSoftware:        "unwanted_software",
	CategoryMalware:                 "malware",
	CategoryAppSec:                  "appsec",
}

// String returns the rubric-side name of the category.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// Valid reports whether c is an assigned category id.
func (c Category) Valid() bool { return c >= CategoryFQ && c < categoryMax }

// ParseCategory maps a rubric-side name to its id.
func ParseCategory(name string) (Category, bool) {
	for c, n := range categoryNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// AllCategories returns every category in report display order.
func AllCategories() []Category {
	out := make([]Category, 0, int(categoryMax)-1)
	for c := CategoryFQ; c < categoryMax; c++ {
		out = append(out, c)
	}
	return out
}

// -- Vulnerabilities --

// Vulnerability is an unlocked rubric entry as it appears on the report.
type Vulnerability struct {
	Title    string
	Points   float64
	Category Category
	SetOnce  bool
}
