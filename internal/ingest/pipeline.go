// Package ingest runs uploaded scans through duplicate detection and
// extraction, one file at a time, and commits reviewed results to the
// store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zepposd/docudigitize/internal/clock"
	"github.com/zepposd/docudigitize/internal/contenthash"
	apperrors "github.com/zepposd/docudigitize/internal/errors"
	"github.com/zepposd/docudigitize/internal/models"
	"github.com/zepposd/docudigitize/internal/state"
)

// Stage is where the current queue item stands.
type Stage string

const (
	// StageIdle means the queue is empty.
	StageIdle Stage = "idle"
	// StageReady means the current item has not been processed yet.
	StageReady Stage = "ready"
	// StageDuplicate means a live file has the same content. The caller
	// must ConfirmReplace or Skip.
	StageDuplicate Stage = "duplicate"
	// StageExtracting means an extraction call is in flight.
	StageExtracting Stage = "extracting"
	// StageReview means the extraction succeeded and waits for Commit.
	StageReview Stage = "review"
	// StageFailed means the last extraction failed. The caller may Retry
	// or Skip. An auth failure also lands here.
	StageFailed Stage = "failed"
)

// Current describes the item at the head of the queue.
type Current struct {
	Stage Stage `json:"stage"`
	// Position is 1-based; zero when the queue is empty.
	Position int    `json:"position"`
	Total    int    `json:"total"`
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	Hash     string `json:"contentHash,omitempty"`

	// Duplicate is the live file sharing the item's content hash.
	Duplicate *models.DigitizedFile `json:"duplicate,omitempty"`
	// ReplaceID is the id Commit will overwrite, empty for a new file.
	ReplaceID  string             `json:"replaceId,omitempty"`
	Extraction *models.Extraction `json:"extraction,omitempty"`
	Err        error              `json:"-"`
}

// EnqueueResult reports which uploads were queued.
type EnqueueResult struct {
	Accepted int
	// Rejected holds the names of uploads that are not PNG, JPEG or PDF.
	Rejected []string
}

type item struct {
	name     string
	mimeType string
	data     []byte
	hash     string
}

// Pipeline is the sequential upload queue. Its methods are safe to call
// from multiple goroutines, but only one item is ever extracted at a time.
type Pipeline struct {
	st        *state.State
	extractor Extractor
	clock     clock.Clock
	logger    *slog.Logger

	mu         sync.Mutex
	queue      []item
	idx        int
	stage      Stage
	duplicate  *models.DigitizedFile
	replaceID  string
	extraction *models.Extraction
	lastErr    error
	// attempt invalidates extractions that were abandoned while in flight.
	attempt uint64
}

// New returns an empty pipeline.
func New(st *state.State, extractor Extractor, clk clock.Clock, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		st:        st,
		extractor: extractor,
		clock:     clk,
		logger:    logger.With(slog.String("component", "ingest")),
		stage:     StageIdle,
	}
}

// Enqueue adds uploads to the queue. When the queue is empty the uploads
// start a new batch; otherwise they are appended to the batch in flight.
// Uploads of an unsupported type are dropped and reported.
func (p *Pipeline) Enqueue(uploads ...Upload) EnqueueResult {
	var (
		res   EnqueueResult
		items []item
	)

	for _, u := range uploads {
		mimeType, err := DetectType(u.Data)
		if err != nil {
			p.logger.Warn("upload rejected", slog.String("name", u.Name), slog.String("error", err.Error()))
			res.Rejected = append(res.Rejected, u.Name)

			continue
		}

		items = append(items, item{name: normalizeName(u.Name), mimeType: mimeType, data: u.Data})
	}

	res.Accepted = len(items)
	if len(items) == 0 {
		return res
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stage == StageIdle {
		p.queue = items
		p.idx = 0
		p.resetItemLocked()
	} else {
		p.queue = append(p.queue, items...)
	}

	p.logger.Info("uploads queued", slog.Int("accepted", res.Accepted), slog.Int("queued", len(p.queue)-p.idx))

	return res
}

// Current returns the state of the head of the queue.
func (p *Pipeline) Current() Current {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.currentLocked()
}

func (p *Pipeline) currentLocked() Current {
	c := Current{Stage: p.stage}
	if p.stage == StageIdle {
		return c
	}

	it := p.queue[p.idx]
	c.Position = p.idx + 1
	c.Total = len(p.queue)
	c.Name = it.name
	c.MIMEType = it.mimeType
	c.Hash = it.hash
	c.ReplaceID = p.replaceID
	c.Err = p.lastErr

	if p.duplicate != nil {
		d := p.duplicate.Clone()
		c.Duplicate = &d
	}

	if p.extraction != nil {
		e := p.extraction.Clone()
		c.Extraction = &e
	}

	return c
}

// Process hashes the current item and checks it against live files. A
// match stops at StageDuplicate without calling the extractor; otherwise
// the item is extracted and left in StageReview.
func (p *Pipeline) Process(ctx context.Context) (Current, error) {
	p.mu.Lock()

	if p.stage != StageReady {
		c := p.currentLocked()
		p.mu.Unlock()

		return c, fmt.Errorf("process in stage %s: %w", c.Stage, apperrors.ErrNoPendingItem)
	}

	it := &p.queue[p.idx]
	if it.hash == "" {
		it.hash = contenthash.Bytes(it.data)
	}

	if dup, ok := p.findByHash(it.hash); ok {
		p.duplicate = &dup
		p.stage = StageDuplicate
		c := p.currentLocked()
		p.mu.Unlock()

		p.logger.Info("duplicate upload",
			slog.String("name", it.name),
			slog.String("existing_id", dup.ID),
			slog.String("existing_name", dup.OriginalFilename),
		)

		return c, nil
	}

	return p.extractLocked(ctx)
}

// ConfirmReplace accepts the duplicate decision: the current item is
// extracted and Commit will overwrite the matched file in place.
func (p *Pipeline) ConfirmReplace(ctx context.Context) (Current, error) {
	p.mu.Lock()

	if p.stage != StageDuplicate || p.duplicate == nil {
		c := p.currentLocked()
		p.mu.Unlock()

		return c, fmt.Errorf("replace in stage %s: %w", c.Stage, apperrors.ErrNoPendingItem)
	}

	p.replaceID = p.duplicate.ID
	p.duplicate = nil

	return p.extractLocked(ctx)
}

// Retry repeats the extraction after a failure, for example once a new
// API key has been entered.
func (p *Pipeline) Retry(ctx context.Context) (Current, error) {
	p.mu.Lock()

	if p.stage != StageFailed {
		c := p.currentLocked()
		p.mu.Unlock()

		return c, fmt.Errorf("retry in stage %s: %w", c.Stage, apperrors.ErrNoPendingItem)
	}

	return p.extractLocked(ctx)
}

// extractLocked runs the extractor for the current item. It is entered
// with p.mu held and returns with it released. The lock is not held
// during the call.
func (p *Pipeline) extractLocked(ctx context.Context) (Current, error) {
	it := p.queue[p.idx]
	p.stage = StageExtracting
	p.lastErr = nil
	p.attempt++
	attempt := p.attempt
	titles := models.TitleNames(p.st.MetadataTitles.All())
	p.mu.Unlock()

	res, err := p.extractor.Extract(ctx, ExtractRequest{
		Data:     it.data,
		MIMEType: it.mimeType,
		Titles:   titles,
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	if attempt != p.attempt {
		// Skipped or reset while extracting. The result is dropped.
		return p.currentLocked(), fmt.Errorf("extraction of %s abandoned: %w", it.name, context.Canceled)
	}

	if err != nil {
		if ctx.Err() != nil {
			p.stage = StageReady
			return p.currentLocked(), fmt.Errorf("extracting %s: %w", it.name, ctx.Err())
		}

		p.stage = StageFailed
		p.lastErr = err

		level := slog.LevelWarn
		if apperrors.IsAuth(err) {
			level = slog.LevelError
		}

		p.logger.Log(ctx, level, "extraction failed", slog.String("name", it.name), slog.String("error", err.Error()))

		return p.currentLocked(), fmt.Errorf("extracting %s: %w", it.name, err)
	}

	ext := res.Clone()
	if ext.Metadata == nil {
		ext.Metadata = models.Metadata{}
	}

	p.extraction = &ext
	p.stage = StageReview

	return p.currentLocked(), nil
}

// Skip drops the current item without writing anything and moves to the
// next one. It cancels a duplicate decision, a failed extraction or an
// unreviewed result alike.
func (p *Pipeline) Skip() Current {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stage == StageIdle {
		return p.currentLocked()
	}

	p.logger.Info("upload skipped", slog.String("name", p.queue[p.idx].name), slog.String("stage", string(p.stage)))
	p.advanceLocked()

	return p.currentLocked()
}

// Reset empties the queue. An extraction in flight is abandoned and its
// result never reaches the store.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.queue = nil
	p.idx = 0
	p.resetItemLocked()
	p.stage = StageIdle
}

// Commit saves the reviewed extraction and moves to the next item. edited
// replaces the extracted fields when non-nil. A new file is created unless
// a replacement was confirmed, in which case the matched file is
// overwritten under its existing id and creation time.
//
// An error wrapping ErrPersistence means the file is in the session but
// not on disk; the queue still advances.
func (p *Pipeline) Commit(uploadedBy string, edited *models.Extraction) (models.DigitizedFile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stage != StageReview || p.extraction == nil {
		return models.DigitizedFile{}, fmt.Errorf("commit in stage %s: %w", p.stage, apperrors.ErrNoPendingItem)
	}

	it := p.queue[p.idx]

	ext := *p.extraction
	if edited != nil {
		ext = edited.Clone()
	}

	fresh := models.DigitizedFile{
		OriginalFilename:   it.name,
		ContentHash:        it.hash,
		OCRText:            ext.OCRText,
		Summary:            ext.Summary,
		OriginalLanguage:   ext.OriginalLanguage,
		Categories:         []models.FileCategory{},
		Metadata:           ext.Metadata.Clone(),
		ClassificationGoal: "",
		CreatedAt:          p.clock.Now(),
		APICalls:           1,
		UploadedBy:         uploadedBy,
		ArchiveStatus:      models.ArchiveKeep,
	}

	if fresh.Metadata == nil {
		fresh.Metadata = models.Metadata{}
	}

	var (
		saved models.DigitizedFile
		err   error
	)

	if p.replaceID != "" {
		var discarded []string

		saved, err = p.st.Files.Update(p.replaceID, func(f *models.DigitizedFile) {
			discarded = derivedFields(*f)
			id, created := f.ID, f.CreatedAt
			*f = fresh
			f.ID = id
			f.CreatedAt = created
		})
		if errors.Is(err, apperrors.ErrNotFound) {
			// The matched file was deleted during review.
			return models.DigitizedFile{}, fmt.Errorf("replacing %s: %w", it.name, err)
		}

		if len(discarded) > 0 {
			p.logger.Warn("replacement discards derived work",
				slog.String("id", p.replaceID),
				slog.String("name", it.name),
				slog.Any("fields", discarded),
			)
		}
	} else {
		saved, err = p.st.Files.Create(fresh)
	}

	p.logger.Info("upload committed",
		slog.String("name", it.name),
		slog.String("id", saved.ID),
		slog.Bool("replaced", p.replaceID != ""),
	)

	p.advanceLocked()

	if err != nil {
		return saved, fmt.Errorf("saving %s: %w", it.name, err)
	}

	return saved, nil
}

// derivedFields names the work done on f after ingest that a fresh
// extraction does not carry over.
func derivedFields(f models.DigitizedFile) []string {
	var out []string

	if f.TranslationEn != "" {
		out = append(out, "translationEn")
	}

	if f.TranslationGr != "" {
		out = append(out, "translationGr")
	}

	if len(f.Categories) > 0 {
		out = append(out, "categories")
	}

	if f.ClassificationGoal != "" {
		out = append(out, "classificationGoal")
	}

	return out
}

func (p *Pipeline) findByHash(hash string) (models.DigitizedFile, bool) {
	for _, f := range p.st.Files.All() {
		if f.ContentHash == hash {
			return f, true
		}
	}

	return models.DigitizedFile{}, false
}

// advanceLocked moves past the current item, clearing the queue after the
// last one. Caller holds p.mu.
func (p *Pipeline) advanceLocked() {
	p.queue[p.idx].data = nil
	p.idx++
	p.resetItemLocked()

	if p.idx >= len(p.queue) {
		p.queue = nil
		p.idx = 0
		p.stage = StageIdle
	}
}

func (p *Pipeline) resetItemLocked() {
	p.attempt++
	p.duplicate = nil
	p.replaceID = ""
	p.extraction = nil
	p.lastErr = nil
	p.stage = StageReady
}
