package ingest

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/zepposd/docudigitize/internal/errors"
)

// DuplicatePolicy decides duplicate uploads when nobody is there to ask.
type DuplicatePolicy string

const (
	// OnDuplicateSkip leaves the existing file alone.
	OnDuplicateSkip DuplicatePolicy = "skip"
	// OnDuplicateReplace re-extracts and overwrites the existing file.
	OnDuplicateReplace DuplicatePolicy = "replace"
)

// Valid reports whether d is a known policy.
func (d DuplicatePolicy) Valid() bool {
	return d == OnDuplicateSkip || d == OnDuplicateReplace
}

// Failure is an upload that could not be extracted.
type Failure struct {
	Name string `json:"name"`
	Err  string `json:"error"`
}

// Committed is an upload that was stored, with the id of its file.
type Committed struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Report summarizes an unattended run. Every entry names the upload.
type Report struct {
	Created  []Committed `json:"created"`
	Replaced []Committed `json:"replaced"`
	Skipped  []string    `json:"skipped"`
	Failed   []Failure   `json:"failed"`
}

// RunAll drains the queue without review: duplicates follow policy,
// extractions are committed as returned, and a service failure skips the
// file. An auth failure stops the run at once, leaving the failed item at
// the head of the queue, and is returned. Persistence warnings are logged
// and do not stop the run.
func (p *Pipeline) RunAll(ctx context.Context, uploadedBy string, policy DuplicatePolicy) (Report, error) {
	var rep Report

	for {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		cur := p.Current()

		switch cur.Stage {
		case StageIdle:
			return rep, nil

		case StageReady:
			cur, err := p.Process(ctx)
			if err != nil {
				if stop, err := p.handleFailure(ctx, &rep, cur, err); stop {
					return rep, err
				}

				continue
			}

			if cur.Stage == StageDuplicate && policy != OnDuplicateReplace {
				rep.Skipped = append(rep.Skipped, cur.Name)
				p.Skip()
			}

		case StageDuplicate:
			cur, err := p.ConfirmReplace(ctx)
			if err != nil {
				if stop, err := p.handleFailure(ctx, &rep, cur, err); stop {
					return rep, err
				}
			}

		case StageReview:
			replacing := cur.ReplaceID != ""

			f, err := p.Commit(uploadedBy, nil)
			if err != nil && !apperrors.IsPersistence(err) {
				return rep, fmt.Errorf("committing %s: %w", cur.Name, err)
			}

			if err != nil {
				p.logger.Warn("upload kept in session only", slog.String("name", cur.Name), slog.String("error", err.Error()))
			}

			done := Committed{Name: cur.Name, ID: f.ID}
			if replacing {
				rep.Replaced = append(rep.Replaced, done)
			} else {
				rep.Created = append(rep.Created, done)
			}

		case StageFailed:
			// Left over from an earlier interactive attempt.
			cur, err := p.Retry(ctx)
			if err != nil {
				if stop, err := p.handleFailure(ctx, &rep, cur, err); stop {
					return rep, err
				}
			}

		default:
			return rep, fmt.Errorf("unattended run in stage %s: %w", cur.Stage, apperrors.ErrNoPendingItem)
		}
	}
}

// handleFailure records a failed extraction. It reports whether the run
// must stop.
func (p *Pipeline) handleFailure(ctx context.Context, rep *Report, cur Current, err error) (bool, error) {
	if ctx.Err() != nil || apperrors.IsAuth(err) {
		return true, err
	}

	rep.Failed = append(rep.Failed, Failure{Name: cur.Name, Err: err.Error()})
	p.Skip()

	return false, nil
}
