package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"promisetracker/internal/batch"
	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
)

const maxBodyBytes = 1 << 20

// pipelineOwned fields are written only by the materializer, the link
// generator and review.
var pipelineOwned = map[string]struct{}{
	"processing_status":     {},
	"linked_evidence_ids":   {},
	"promise_ids":           {},
	"extracted_keywords":    {},
	"link_status":           {},
	"keyword_overlap_score": {},
	"llm_likelihood_score":  {},
	"llm_explanation":       {},
}

// decodeEdit decodes an edit body into T. Pipeline-owned keys fail with a
// validation error naming them; other unknown keys are a bad request.
func decodeEdit[T any](r *http.Request) (*T, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read body")
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body")
	}
	var owned []string
	for k := range keys {
		if _, ok := pipelineOwned[k]; ok {
			owned = append(owned, k)
		}
	}
	if len(owned) > 0 {
		sort.Strings(owned)
		return nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("fields managed by the pipeline cannot be edited: %s", strings.Join(owned, ", ")))
	}

	req := new(T)
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body")
	}
	return req, nil
}

type PromiseEditRequest struct {
	Text              *string    `json:"text"`
	Department        *string    `json:"department"`
	ParliamentSession *string    `json:"parliament_session"`
	DateIssued        *time.Time `json:"date_issued"`
	Status            *string    `json:"status"`
}

func (r *PromiseEditRequest) Normalize() {
	trim(r.Text)
	trim(r.Department)
	trim(r.ParliamentSession)
	if r.Status != nil {
		*r.Status = strings.ToLower(strings.TrimSpace(*r.Status))
	}
}

func (r *PromiseEditRequest) Validate() error {
	if r.Status != nil && !models.PromiseStatus(*r.Status).Valid() {
		return dErrors.New(dErrors.CodeValidation, "status must be active or deleted")
	}
	return nil
}

func (r *PromiseEditRequest) patch() PromisePatch {
	p := PromisePatch{
		Text:              r.Text,
		Department:        r.Department,
		ParliamentSession: r.ParliamentSession,
		DateIssued:        r.DateIssued,
	}
	if r.Status != nil {
		status := models.PromiseStatus(*r.Status)
		p.Status = &status
	}
	return p
}

type EvidenceEditRequest struct {
	Title             *string    `json:"title"`
	Summary           *string    `json:"summary"`
	SourceURL         *string    `json:"source_url"`
	ParliamentSession *string    `json:"parliament_session"`
	EvidenceDate      *time.Time `json:"evidence_date"`
	Deleted           *bool      `json:"deleted"`
}

func (r *EvidenceEditRequest) Normalize() {
	trim(r.Title)
	trim(r.SourceURL)
	trim(r.ParliamentSession)
}

func (r *EvidenceEditRequest) Validate() error {
	return nil
}

func (r *EvidenceEditRequest) patch() EvidencePatch {
	return EvidencePatch{
		Title:             r.Title,
		Summary:           r.Summary,
		SourceURL:         r.SourceURL,
		ParliamentSession: r.ParliamentSession,
		EvidenceDate:      r.EvidenceDate,
		Deleted:           r.Deleted,
	}
}

type CreatePromiseRequest struct {
	ID                string    `json:"id"`
	Text              string    `json:"text"`
	Department        string    `json:"department"`
	ParliamentSession string    `json:"parliament_session"`
	DateIssued        time.Time `json:"date_issued"`
}

func (r *CreatePromiseRequest) Normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.Text = strings.TrimSpace(r.Text)
	r.Department = strings.TrimSpace(r.Department)
	r.ParliamentSession = strings.TrimSpace(r.ParliamentSession)
}

func (r *CreatePromiseRequest) Validate() error {
	if r.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "id is required")
	}
	if r.Text == "" {
		return dErrors.New(dErrors.CodeValidation, "text is required")
	}
	return nil
}

func (r *CreatePromiseRequest) promise() *models.Promise {
	return &models.Promise{
		ID:                id.PromiseID(r.ID),
		Text:              r.Text,
		Department:        r.Department,
		ParliamentSession: r.ParliamentSession,
		DateIssued:        r.DateIssued.UTC(),
		Status:            models.PromiseStatusActive,
	}
}

type BatchRequest struct {
	Stage       string    `json:"stage"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	MaxItems    int       `json:"max_items"`
	Force       bool      `json:"force"`
	Session     string    `json:"session"`
}

func (r *BatchRequest) Normalize() {
	r.Stage = strings.ToLower(strings.TrimSpace(r.Stage))
	r.Session = strings.TrimSpace(r.Session)
}

func (r *BatchRequest) Validate() error {
	return r.request().Validate()
}

func (r *BatchRequest) request() batch.Request {
	return batch.Request{
		Stage:       batch.Stage(r.Stage),
		WindowStart: r.WindowStart,
		WindowEnd:   r.WindowEnd,
		MaxItems:    r.MaxItems,
		Force:       r.Force,
		Session:     r.Session,
	}
}

func trim(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}
