package ingestion_engine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// Failure stages.
const (
	StageParse    = "parse"
	StageElement  = "element"
	StageChart    = "chart"
	StageEmbed    = "embed"
	StageUpsert   = "upsert"
	StageDocument = "document"
)

// Failure is one soft failure recorded while ingesting a document.
type Failure struct {
	Stage  string `json:"stage"`
	Target string `json:"target"`
	Error  string `json:"error"`
}

func (f Failure) String() string {
	return fmt.Sprintf("%s %s: %s", f.Stage, f.Target, f.Error)
}

// Report summarises one document's ingestion.
type Report struct {
	DocumentID string         `json:"document_id"`
	FileName   string         `json:"file_name"`
	Quarter    string         `json:"quarter"`
	Elements   int            `json:"elements"`
	Stored     map[string]int `json:"stored"` // by content type
	Failures   []Failure      `json:"failures,omitempty"`

	mu sync.Mutex
}

func newReport(attrs DocumentAttributes) *Report {
	return &Report{
		DocumentID: attrs.DocumentID,
		FileName:   attrs.FileName,
		Quarter:    attrs.Quarter,
		Stored:     map[string]int{},
	}
}

func (r *Report) fail(stage, target string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, Failure{Stage: stage, Target: target, Error: err.Error()})
}

func (r *Report) stored(units []models.RetrievableUnit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range units {
		r.Stored[string(u.ContentType())]++
	}
}

// UnitCount is the number of units written.
func (r *Report) UnitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.Stored {
		n += c
	}
	return n
}

// Status derives the registry status from the outcome.
func (r *Report) Status() string {
	r.mu.Lock()
	failures := len(r.Failures)
	r.mu.Unlock()
	switch {
	case failures == 0:
		return models.StatusReady
	case r.UnitCount() > 0:
		return models.StatusPartial
	}
	return models.StatusFailed
}

// Summary is a one-line description for logs and the CLI.
func (r *Report) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	parts := []string{}
	for _, ct := range []models.ContentType{models.ContentText, models.ContentTable, models.ContentChart} {
		parts = append(parts, fmt.Sprintf("%s=%d", ct, r.Stored[string(ct)]))
	}
	return fmt.Sprintf("%s [%s] %s failures=%d", r.FileName, r.Quarter, strings.Join(parts, " "), len(r.Failures))
}
