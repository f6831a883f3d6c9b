package domain

// FinalizeOutput holds the four sections extracted from a finalize response.
// The contents are opaque text and are never parsed.
type FinalizeOutput struct {
	Markdown  string `json:"markdown"`
	JSON      string `json:"json"`
	Companies string `json:"companies"`
	People    string `json:"people"`
}

// Empty reports whether no section could be extracted.
func (o FinalizeOutput) Empty() bool {
	return o.Markdown == "" && o.JSON == "" && o.Companies == "" && o.People == ""
}

// Artifact is a named downloadable file derived from a FinalizeOutput.
type Artifact struct {
	Name string
	Data string
}

// Artifacts returns the downloadable files in display order.
func (o FinalizeOutput) Artifacts() []Artifact {
	return []Artifact{
		{Name: "companies.csv", Data: o.Companies},
		{Name: "people.csv", Data: o.People},
		{Name: "icp.json", Data: o.JSON},
	}
}
