// Package icp holds the Ideal Customer Profile contract shared by the relay and
// the wizard clients: the finalize section markers, the splitting logic and the
// schema handed to the model.
package icp

import (
	"strings"

	"icp-wizard/internal/domain"
)

const (
	MarkerMarkdown  = "---MARKDOWN---"
	MarkerJSON      = "---JSON---"
	MarkerCompanies = "---CSV_COMPANIES---"
	MarkerPeople    = "---CSV_PEOPLE---"
)

const (
	CompaniesHeader = "company_name,domain,industry,employee_count,revenue_range,geo,notes"
	PeopleHeader    = "first_name,last_name,title,seniority,department,company_name,company_domain,geo,linkedin_url,email,phone,notes"
)

// Split extracts the four finalize sections from a model response.
// A section whose bounding markers are missing or out of order is empty.
func Split(text string) domain.FinalizeOutput {
	return domain.FinalizeOutput{
		Markdown:  Between(text, MarkerMarkdown, MarkerJSON),
		JSON:      Between(text, MarkerJSON, MarkerCompanies),
		Companies: Between(text, MarkerCompanies, MarkerPeople),
		People:    After(text, MarkerPeople),
	}
}

// Between returns the trimmed text strictly between the first occurrences of
// start and end, or "" when either is absent or end does not follow start.
func Between(src, start, end string) string {
	s := strings.Index(src, start)
	e := strings.Index(src, end)
	if s == -1 || e == -1 || e <= s {
		return ""
	}
	from := s + len(start)
	if e < from {
		return ""
	}
	return strings.TrimSpace(src[from:e])
}

// After returns the trimmed text following the first occurrence of marker.
func After(src, marker string) string {
	_, rest, ok := strings.Cut(src, marker)
	if !ok {
		return ""
	}
	return strings.TrimSpace(rest)
}
