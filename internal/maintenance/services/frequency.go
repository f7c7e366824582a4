package services

import (
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	numericFrequencyPattern = regexp.MustCompile(`(\d+)\s*(day|week|month|year)s?`)
	hoursFrequencyPattern   = regexp.MustCompile(`every\s+(\d+)\s+hours?`)
)

// keywordOffset is one coarse frequency family. Families are matched in
// order, so the more specific spellings (semi-annual, bi-annual) must come
// before the bare "annual" they contain.
type keywordOffset struct {
	keywords            []string
	days, months, years int
}

var keywordFrequencies = []keywordOffset{
	{keywords: []string{"daily", "every day"}, days: 1},
	{keywords: []string{"weekly", "every week"}, days: 7},
	{keywords: []string{"quarterly", "every 3 months"}, months: 3},
	{keywords: []string{"semi-annual", "every 6 months"}, months: 6},
	{keywords: []string{"bi-annual", "every 2 years"}, years: 2},
	{keywords: []string{"monthly", "every month"}, months: 1},
	{keywords: []string{"annual", "yearly", "every year"}, years: 1},
}

// NextMaintenanceDate calculates the next due date from a free-text frequency
// description and a base date. Frequency text comes from PDF extraction or
// manual entry, so the function is total: anything unrecognized degrades to
// base + 1 day rather than failing, because rejecting one malformed record
// would stall the whole scheduling pass.
func NextMaintenanceDate(frequency string, base time.Time) time.Time {
	if strings.TrimSpace(frequency) == "" {
		log.Printf("Frequency is empty, defaulting to daily")
		return base.AddDate(0, 0, 1)
	}

	normalized := strings.ToLower(strings.TrimSpace(frequency))

	for _, family := range keywordFrequencies {
		for _, kw := range family.keywords {
			if strings.Contains(normalized, kw) {
				return base.AddDate(family.years, family.months, family.days)
			}
		}
	}

	if m := numericFrequencyPattern.FindStringSubmatch(normalized); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			switch m[2] {
			case "day":
				return base.AddDate(0, 0, n)
			case "week":
				return base.AddDate(0, 0, n*7)
			case "month":
				return base.AddDate(0, n, 0)
			case "year":
				return base.AddDate(n, 0, 0)
			}
		}
	}

	if m := hoursFrequencyPattern.FindStringSubmatch(normalized); m != nil {
		hours, err := strconv.Atoi(m[1])
		if err == nil {
			days := hours / 24
			if days < 1 {
				days = 1
			}
			log.Printf("Converting %d hours to %d days for maintenance scheduling", hours, days)
			return base.AddDate(0, 0, days)
		}
	}

	log.Printf("Unknown frequency format: '%s', defaulting to daily", frequency)
	return base.AddDate(0, 0, 1)
}
