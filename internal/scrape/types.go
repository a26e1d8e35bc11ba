package scrape

import (
	"strings"
	"time"
)

// ProductRecord is the document written for every enumerated result node.
// Nil fields are stored as null.
type ProductRecord struct {
	Name        *string `bson:"name" json:"name"`
	Weight      *string `bson:"weight" json:"weight"`
	Price       *string `bson:"price" json:"price"`
	Ingredients *string `bson:"ingredients" json:"ingredients"`
	Nutrition   *string `bson:"nutrition" json:"nutrition"`
	About       *string `bson:"about" json:"about"`
	Image       *string `bson:"image" json:"image"`
	Vegetarian  *string `bson:"vegetarian" json:"vegetarian"`
}

// FieldSpec locates one field below an item node. When Attribute is empty the
// node's whitespace-trimmed text content is read instead.
type FieldSpec struct {
	Selector  string `mapstructure:"selector"`
	Attribute string `mapstructure:"attribute"`
}

// ReadsText reports whether the spec reads trimmed text rather than an attribute.
func (f FieldSpec) ReadsText() bool {
	return strings.TrimSpace(f.Attribute) == ""
}

// FieldSelectors holds the eight per-field specs.
type FieldSelectors struct {
	Name        FieldSpec `mapstructure:"name"`
	Weight      FieldSpec `mapstructure:"weight"`
	Price       FieldSpec `mapstructure:"price"`
	Ingredients FieldSpec `mapstructure:"ingredients"`
	Nutrition   FieldSpec `mapstructure:"nutrition"`
	About       FieldSpec `mapstructure:"about"`
	Image       FieldSpec `mapstructure:"image"`
	Vegetarian  FieldSpec `mapstructure:"vegetarian"`
}

// Selectors describes the page markup the pipeline depends on.
type Selectors struct {
	SiteMarker    string         `mapstructure:"site_marker"`
	ResultsMarker string         `mapstructure:"results_marker"`
	Items         string         `mapstructure:"items"`
	Fields        FieldSelectors `mapstructure:"fields"`
}

// DefaultSelectors matches the search-results markup the scraper was written for.
func DefaultSelectors() Selectors {
	return Selectors{
		SiteMarker:    "#nav-logo-sprites",
		ResultsMarker: ".s-result-list",
		Items:         ".s-result-list .s-result-item",
		Fields: FieldSelectors{
			Name:        FieldSpec{Selector: ".s-image", Attribute: "alt"},
			Weight:      FieldSpec{Selector: ".s-item__weight"},
			Price:       FieldSpec{Selector: ".a-price-whole"},
			Ingredients: FieldSpec{Selector: ".a-text-bold"},
			Nutrition:   FieldSpec{Selector: ".a-size-base.a-link-normal.s-no-hover"},
			About:       FieldSpec{Selector: ".a-section.a-text-center"},
			Image:       FieldSpec{Selector: ".s-image img", Attribute: "src"},
			Vegetarian:  FieldSpec{Selector: ".a-icon-prime-pantry", Attribute: "aria-label"},
		},
	}
}

// ItemFailure is the report entry for a skipped item.
type ItemFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Report summarizes one pipeline run.
type Report struct {
	RunID       string        `json:"run_id"`
	TargetURL   string        `json:"target_url"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	ItemsFound  int           `json:"items_found"`
	Inserted    int           `json:"inserted"`
	Failed      int           `json:"failed"`
	Failures    []ItemFailure `json:"failures,omitempty"`
	SnapshotURI string        `json:"snapshot_uri,omitempty"`
	// Error is set when the run aborted before completion.
	Error       string        `json:"error,omitempty"`
}

// Aborted reports whether a setup failure ended the run.
func (r Report) Aborted() bool {
	return r.Error != ""
}

// Duration is the wall time between start and finish.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
