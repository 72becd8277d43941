package rag

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// EvalCase is one question with the source expected among its citations.
type EvalCase struct {
	Question       string `json:"question"`
	ExpectedSource string `json:"expected_source"`
}

// EvalResult is the outcome of one case.
type EvalResult struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	HitExpected bool   `json:"hit_expected"`
	Grounded    bool   `json:"grounded"`
	Error       string `json:"error,omitempty"`
}

// EvalSummary aggregates a run.
type EvalSummary struct {
	Total        int          `json:"total"`
	HitRate      float64      `json:"hit_rate"`
	GroundedRate float64      `json:"grounded_rate"`
	Results      []EvalResult `json:"results"`
}

// Answerer answers one question. *Engine satisfies it, as does an HTTP client of the ask API.
type Answerer interface {
	Answer(ctx context.Context, question string) (*models.AnswerResult, error)
}

// Evaluate answers every case. A case counts as a hit when any citation source contains
// the expected source, and as grounded when the answer does not start with the no-information literal.
// A failing case is recorded and the run continues unless ctx is done.
func Evaluate(ctx context.Context, a Answerer, cases []EvalCase) (*EvalSummary, error) {
	summary := &EvalSummary{Total: len(cases), Results: make([]EvalResult, 0, len(cases))}
	var hits, grounded int
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		r := EvalResult{Question: c.Question}
		res, err := a.Answer(ctx, c.Question)
		if err != nil {
			r.Error = err.Error()
			summary.Results = append(summary.Results, r)
			continue
		}
		r.Answer = res.Answer
		for _, cit := range res.Citations {
			if c.ExpectedSource != "" && strings.Contains(cit.Source, c.ExpectedSource) {
				r.HitExpected = true
				break
			}
		}
		r.Grounded = !strings.HasPrefix(strings.ToLower(strings.TrimSpace(res.Answer)), strings.ToLower(models.NoInformationAnswer))
		if r.HitExpected {
			hits++
		}
		if r.Grounded {
			grounded++
		}
		summary.Results = append(summary.Results, r)
	}
	n := float64(max(len(cases), 1))
	summary.HitRate = float64(hits) / n
	summary.GroundedRate = float64(grounded) / n
	return summary, nil
}

// ReadEvalCases parses CSV with a header row naming the question and expected_source columns.
func ReadEvalCases(r io.Reader) ([]EvalCase, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read eval header: %w", err)
	}
	qCol, srcCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "question":
			qCol = i
		case "expected_source":
			srcCol = i
		}
	}
	if qCol < 0 {
		return nil, errors.New("eval file has no question column")
	}

	var cases []EvalCase
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return cases, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read eval row: %w", err)
		}
		if qCol >= len(rec) || strings.TrimSpace(rec[qCol]) == "" {
			continue
		}
		c := EvalCase{Question: strings.TrimSpace(rec[qCol])}
		if srcCol >= 0 && srcCol < len(rec) {
			c.ExpectedSource = strings.TrimSpace(rec[srcCol])
		}
		cases = append(cases, c)
	}
}
