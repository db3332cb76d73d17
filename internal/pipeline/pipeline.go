// Package pipeline drives multi-pass work package extraction: document
// loading, pass sequencing, large-document batching, merge, and terminal
// state handling.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yabrams/precon-demo-sub001/common/llm"
	"github.com/yabrams/precon-demo-sub001/internal/batch"
	"github.com/yabrams/precon-demo-sub001/internal/classify"
	"github.com/yabrams/precon-demo-sub001/internal/cost"
	"github.com/yabrams/precon-demo-sub001/internal/docs"
	"github.com/yabrams/precon-demo-sub001/internal/merge"
	"github.com/yabrams/precon-demo-sub001/internal/model"
	"github.com/yabrams/precon-demo-sub001/internal/passes"
	"github.com/yabrams/precon-demo-sub001/internal/prompts"
	"github.com/yabrams/precon-demo-sub001/internal/session"
	"github.com/yabrams/precon-demo-sub001/internal/store"
)

const modelCallAttempts = 3

// Deps carries the pipeline's collaborators. Validator and Renderer are
// optional: without a validator, cross-validation runs against the primary
// model; without a renderer, large-document mode is unavailable and every
// run sends whole documents.
type Deps struct {
	Primary   llm.Client
	Validator llm.Client
	Documents *docs.Provider
	Renderer  docs.PageRenderer
	Store     store.ExtractionStore
}

type Pipeline struct {
	primary    llm.Client
	validator  llm.Client
	docs       *docs.Provider
	renderer   docs.PageRenderer
	store      store.ExtractionStore
	classifier *classify.Classifier
}

func New(deps Deps) *Pipeline {
	return &Pipeline{
		primary:    deps.Primary,
		validator:  deps.Validator,
		docs:       deps.Documents,
		renderer:   deps.Renderer,
		store:      deps.Store,
		classifier: classify.New(),
	}
}

// Run executes the full pass sequence for the session. It always returns
// the session (with whatever partial state accumulated); the error, when
// non-nil, is a *model.ExtractionError describing why the run failed.
func (p *Pipeline) Run(ctx context.Context, sess *model.ExtractionSession, listener model.ProgressListener) (*model.ExtractionSession, error) {
	sess.Config = sess.Config.Normalized()
	mgr := session.NewManager(sess, p.store, listener)

	mgr.Transition(ctx, model.StatusInitializing, 10, "Preparing documents")

	if len(sess.Documents) == 0 {
		return p.fail(ctx, mgr, &model.ExtractionError{
			Code:    model.ErrCodeNoDocuments,
			Message: "no documents provided",
			Session: sess,
		})
	}

	documents, err := p.docs.LoadAll(ctx, sess.Documents)
	if err != nil {
		return p.fail(ctx, mgr, &model.ExtractionError{
			Code:    model.ErrCodeDocumentRead,
			Message: err.Error(),
			Session: sess,
			Err:     err,
		})
	}

	passOneDocs := documents
	if filtered := withoutSpecifications(sess.Documents, documents); len(filtered) > 0 {
		passOneDocs = filtered
	}

	pages, large := p.prepareLargeMode(ctx, sess, passOneDocs)

	slog.InfoContext(ctx, "starting extraction run",
		"session_id", sess.ID,
		"project_id", sess.ProjectID,
		"profile", sess.Config.Profile,
		"documents", len(documents),
		"large_document_mode", large)

	totalPasses := sess.Config.Profile.Passes()
	for passNum := 1; passNum <= totalPasses; passNum++ {
		if err := ctx.Err(); err != nil {
			return p.fail(ctx, mgr, &model.ExtractionError{
				Code:       contextErrorCode(err),
				Message:    "run interrupted between passes",
				PassNumber: passNum,
				Session:    sess,
				Err:        err,
			})
		}

		purpose := passPurpose(sess.Config.Profile, passNum)
		mgr.BeginPass(ctx, passNum, passMessage(purpose))

		var record model.ExtractionPass
		var passErr *model.ExtractionError
		switch {
		case passNum == 1 && large:
			record, passErr = p.runBatchedExtract(ctx, mgr, pages)
		case passNum == 1:
			record, passErr = p.runPass(ctx, mgr, passNum, purpose, passOneDocs)
		default:
			record, passErr = p.runPass(ctx, mgr, passNum, purpose, documents)
		}

		if passErr != nil {
			passErr.PassNumber = passNum
			passErr.Session = sess
			if passNum == 1 {
				return p.fail(ctx, mgr, passErr)
			}
			// Later passes refine rather than establish the baseline, so
			// their failures are recorded and the run continues.
			msg := passErr.Error()
			record.Error = &msg
			slog.WarnContext(ctx, "pass failed, continuing with prior state",
				"session_id", sess.ID,
				"pass", passNum,
				"error", passErr)
		}

		mgr.CompletePass(ctx, record, completedMessage(purpose, record))
	}

	if len(sess.Observations) == 0 {
		sess.Observations = merge.SynthesizeBaseline(sess.WorkPackages)
		slog.InfoContext(ctx, "synthesized baseline observations",
			"session_id", sess.ID,
			"count", len(sess.Observations))
	}

	mgr.Complete(ctx, fmt.Sprintf("Extraction complete: %d packages, %d items",
		len(sess.WorkPackages), sess.ItemCount()))
	return sess, nil
}

func (p *Pipeline) fail(ctx context.Context, mgr *session.Manager, extractionErr *model.ExtractionError) (*model.ExtractionSession, error) {
	mgr.Fail(ctx, extractionErr)
	return mgr.Session(), extractionErr
}

// prepareLargeMode renders pages when a renderer is available and the page
// count crosses the configured threshold.
func (p *Pipeline) prepareLargeMode(ctx context.Context, sess *model.ExtractionSession, documents []llm.Document) ([]model.RenderedPage, bool) {
	if p.renderer == nil {
		return nil, false
	}

	var pages []model.RenderedPage
	for _, doc := range documents {
		rendered, err := p.renderer.RenderPages(ctx, doc)
		if err != nil {
			slog.WarnContext(ctx, "page rendering failed, falling back to whole-document mode",
				"session_id", sess.ID,
				"document", doc.Name,
				"error", err)
			return nil, false
		}
		pages = append(pages, rendered...)
	}

	if len(pages) < sess.Config.LargeDocumentPages {
		return nil, false
	}
	return pages, true
}

// runPass executes one whole-document pass: build the request, call the
// model with retries, decode, and apply.
func (p *Pipeline) runPass(ctx context.Context, mgr *session.Manager, passNum int, purpose model.PassPurpose, documents []llm.Document) (model.ExtractionPass, *model.ExtractionError) {
	sess := mgr.Session()
	client := p.primary
	fallback := llm.Client(nil)
	if purpose == model.PurposeCrossValidate && p.validator != nil {
		client = p.validator
		fallback = p.primary
	}

	record := model.ExtractionPass{
		Number:    passNum,
		Model:     client.Model(),
		Purpose:   purpose,
		StartedAt: time.Now().UTC(),
	}

	req := llm.PassRequest{
		Purpose:      llm.Purpose(purpose),
		System:       prompts.System,
		Instructions: p.instructions(purpose, sess),
		Documents:    documents,
		Context:      stateContext(sess, purpose),
		Temperature:  llm.Temp(0),
	}

	resp, err := p.callWithRetries(ctx, client, req, sess.Config.PassTimeout)
	if err != nil && fallback != nil {
		// Cross-model validation degrades to self-validation rather than
		// losing the pass entirely.
		slog.WarnContext(ctx, "validation model unavailable, self-validating",
			"session_id", sess.ID,
			"pass", passNum,
			"error", err)
		record.Model = fallback.Model()
		resp, err = p.callWithRetries(ctx, fallback, req, sess.Config.PassTimeout)
	}
	if err != nil {
		record.CompletedAt = time.Now().UTC()
		return record, &model.ExtractionError{
			Code:    errorCode(err),
			Message: fmt.Sprintf("%s pass: %v", purpose, err),
			Err:     err,
		}
	}

	record.Usage = model.TokenUsage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	record.Model = resp.Model

	stats, decodeErr := p.decodeAndApply(ctx, sess, purpose, resp.Text, passNum, resp.Model)
	record.CompletedAt = time.Now().UTC()
	if decodeErr != nil {
		return record, &model.ExtractionError{
			Code:    model.ErrCodeModelResponse,
			Message: fmt.Sprintf("%s pass response: %v", purpose, decodeErr),
			Err:     decodeErr,
		}
	}

	record.ItemsAdded = stats.ItemsAdded
	record.ItemsModified = stats.ItemsModified
	record.ObservationsAdded = stats.ObservationsAdded
	return record, nil
}

func (p *Pipeline) decodeAndApply(ctx context.Context, sess *model.ExtractionSession, purpose model.PassPurpose, text string, passNum int, modelID string) (passes.ApplyStats, error) {
	switch purpose {
	case model.PurposeExtract:
		resp, err := passes.DecodeExtract(ctx, text)
		if err != nil {
			return passes.ApplyStats{}, err
		}
		return passes.ApplyExtract(ctx, sess, resp, passNum, modelID), nil
	case model.PurposeReview, model.PurposeDeepDive:
		resp, err := passes.DecodeReview(ctx, text)
		if err != nil {
			return passes.ApplyStats{}, err
		}
		return passes.ApplyReview(ctx, sess, resp, passNum, modelID), nil
	default:
		resp, err := passes.DecodeValidation(ctx, text)
		if err != nil {
			return passes.ApplyStats{}, err
		}
		return passes.ApplyValidation(ctx, sess, resp, passNum, modelID), nil
	}
}

func (p *Pipeline) instructions(purpose model.PassPurpose, sess *model.ExtractionSession) string {
	switch purpose {
	case model.PurposeExtract:
		return prompts.Extract(passes.SchemaJSON(passes.ExtractSchema()))
	case model.PurposeReview:
		return prompts.Review(passes.SchemaJSON(passes.ReviewSchema()))
	case model.PurposeDeepDive:
		return prompts.DeepDive(sessionTrades(sess), passes.SchemaJSON(passes.ReviewSchema()))
	case model.PurposeCrossValidate:
		return prompts.CrossValidate(passes.SchemaJSON(passes.ValidationSchema()))
	default:
		return prompts.FinalValidate(passes.SchemaJSON(passes.ValidationSchema()))
	}
}

// callWithRetries makes up to three attempts with exponential backoff
// (1s, 2s) and a per-attempt timeout.
func (p *Pipeline) callWithRetries(ctx context.Context, client llm.Client, req llm.PassRequest, timeout time.Duration) (*llm.PassResponse, error) {
	var resp *llm.PassResponse
	var err error
	for attempt := 0; attempt < modelCallAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err = client.SubmitPass(attemptCtx, req)
		cancel()

		if err == nil {
			return resp, nil
		}
		if !llm.IsRetryable(ctx, err) {
			return nil, err
		}
		slog.WarnContext(ctx, "model call retry",
			"purpose", req.Purpose,
			"attempt", attempt+1,
			"error", err)
		select {
		case <-time.After(time.Duration(1<<attempt) * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", modelCallAttempts, err)
}

// runBatchedExtract is pass 1 in large-document mode: classify pages, build
// trade batches, extract them concurrently, then merge serially.
func (p *Pipeline) runBatchedExtract(ctx context.Context, mgr *session.Manager, pages []model.RenderedPage) (model.ExtractionPass, *model.ExtractionError) {
	sess := mgr.Session()
	record := model.ExtractionPass{
		Number:    1,
		Model:     p.primary.Model(),
		Purpose:   model.PurposeExtract,
		StartedAt: time.Now().UTC(),
	}

	classified := p.classifier.ClassifyPages(pages)
	batches := batch.NewBuilder(sess.Config.MaxBatchTokens).Build(classified)
	slog.InfoContext(ctx, "batched extraction plan",
		"session_id", sess.ID,
		"pages", len(pages),
		"batches", len(batches))

	results := make([]*model.BatchResults, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sess.Config.BatchConcurrency)
	for i := range batches {
		g.Go(func() error {
			res, err := p.extractBatch(gctx, sess, &batches[i])
			if err != nil {
				// A failed batch loses one trade's pages, not the run.
				msg := err.Error()
				batches[i].Status = model.BatchFailed
				batches[i].Error = &msg
				slog.WarnContext(gctx, "batch extraction failed",
					"session_id", sess.ID,
					"batch_id", batches[i].ID,
					"error", err)
				return nil
			}
			batches[i].Status = model.BatchCompleted
			batches[i].Results = res
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	merger := merge.NewMerger(sess.Config.DedupThreshold)
	completed := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		completed++
		sess.WorkPackages = merger.Merge(ctx, sess.WorkPackages, res.WorkPackages)
		sess.Observations = append(sess.Observations, res.Observations...)
		record.Usage.Add(res.Usage)
	}

	record.CompletedAt = time.Now().UTC()
	record.ItemsAdded = sess.ItemCount()
	record.ObservationsAdded = len(sess.Observations)

	if completed == 0 {
		firstErr := errors.New("all batches failed")
		for _, b := range batches {
			if b.Error != nil {
				firstErr = errors.New(*b.Error)
				break
			}
		}
		return record, &model.ExtractionError{
			Code:    model.ErrCodeModelResponse,
			Message: fmt.Sprintf("all %d extraction batches failed", len(batches)),
			Err:     firstErr,
		}
	}
	return record, nil
}

func (p *Pipeline) extractBatch(ctx context.Context, sess *model.ExtractionSession, batch *model.ExtractionBatch) (*model.BatchResults, error) {
	start := time.Now()

	documents := make([]llm.Document, 0, len(batch.Pages))
	var text string
	for _, page := range batch.Pages {
		name := page.Page.SheetNumber
		if name == "" {
			name = fmt.Sprintf("page-%d", page.Page.Number)
		}
		documents = append(documents, llm.Document{
			Name:     name,
			MimeType: page.Page.ImageMimeType,
			Data:     page.Page.Image,
		})
		if page.Page.Text != "" {
			text += fmt.Sprintf("--- %s ---\n%s\n", name, page.Page.Text)
		}
	}

	resp, err := p.callWithRetries(ctx, p.primary, llm.PassRequest{
		Purpose:      llm.PurposeExtract,
		System:       prompts.System,
		Instructions: prompts.BatchExtract(batch.Trade, batch.DivisionCodes, passes.SchemaJSON(passes.ExtractSchema())),
		Documents:    documents,
		Context:      text,
		Temperature:  llm.Temp(0),
	}, sess.Config.PassTimeout)
	if err != nil {
		return nil, err
	}

	decoded, err := passes.DecodeExtract(ctx, resp.Text)
	if err != nil {
		return nil, err
	}

	// Batches accumulate into a private session so merge stays a separate,
	// serialized step.
	scratch := &model.ExtractionSession{}
	passes.ApplyExtract(ctx, scratch, decoded, 1, resp.Model)

	usage := model.TokenUsage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	return &model.BatchResults{
		WorkPackages: scratch.WorkPackages,
		Observations: scratch.Observations,
		Usage:        usage,
		CostUSD:      cost.UsageUSD(usage),
		Duration:     time.Since(start),
	}, nil
}

// withoutSpecifications drops specification documents from the pass-1 set.
// Pass 1 extracts the visible-scope baseline from drawings and schedules;
// specifications return as reference context in later passes. A run holding
// only specifications keeps them, since an empty pass 1 cannot establish
// anything.
func withoutSpecifications(refs []model.ExtractionDocument, loaded []llm.Document) []llm.Document {
	if len(refs) != len(loaded) {
		return loaded
	}
	out := make([]llm.Document, 0, len(loaded))
	for i, ref := range refs {
		if ref.Type == model.DocumentTypeSpecification {
			continue
		}
		out = append(out, loaded[i])
	}
	return out
}

// stateContext serializes the accumulated extraction state for review and
// validation passes. Pass 1 sends no prior state.
func stateContext(sess *model.ExtractionSession, purpose model.PassPurpose) string {
	if purpose == model.PurposeExtract {
		return ""
	}
	state := struct {
		WorkPackages []model.ExtractedWorkPackage `json:"work_packages"`
		Observations []model.AIObservation        `json:"observations,omitempty"`
	}{
		WorkPackages: sess.WorkPackages,
	}
	if purpose == model.PurposeFinalValidate {
		state.Observations = sess.Observations
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return ""
	}
	return "Current extraction state:\n" + string(raw)
}

func sessionTrades(sess *model.ExtractionSession) []string {
	seen := make(map[string]bool)
	var trades []string
	for _, pkg := range sess.WorkPackages {
		if !seen[pkg.Trade] {
			seen[pkg.Trade] = true
			trades = append(trades, pkg.Trade)
		}
	}
	sort.Strings(trades)
	return trades
}

func passPurpose(profile model.PipelineProfile, passNum int) model.PassPurpose {
	sequence := cost.PassSequence(profile)
	if passNum >= 1 && passNum <= len(sequence) {
		return sequence[passNum-1]
	}
	return model.PurposeFinalValidate
}

func passMessage(purpose model.PassPurpose) string {
	switch purpose {
	case model.PurposeExtract:
		return "Extracting work packages"
	case model.PurposeReview:
		return "Reviewing for omissions"
	case model.PurposeDeepDive:
		return "Deep-diving identified trades"
	case model.PurposeCrossValidate:
		return "Cross-validating with second model"
	default:
		return "Final validation"
	}
}

func completedMessage(purpose model.PassPurpose, record model.ExtractionPass) string {
	if record.Error != nil {
		return fmt.Sprintf("Pass %d (%s) failed, continuing", record.Number, purpose)
	}
	return fmt.Sprintf("Pass %d (%s) complete: +%d items, %d observations",
		record.Number, purpose, record.ItemsAdded, record.ObservationsAdded)
}

func errorCode(err error) model.ErrorCode {
	switch {
	case errors.Is(err, llm.ErrAuthentication):
		return model.ErrCodeAuthentication
	case errors.Is(err, llm.ErrRateLimited):
		return model.ErrCodeRateLimit
	case errors.Is(err, llm.ErrMalformedResponse):
		return model.ErrCodeModelResponse
	case errors.Is(err, llm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return model.ErrCodeTimeout
	case errors.Is(err, llm.ErrDocumentRead):
		return model.ErrCodeDocumentRead
	default:
		return model.ErrCodeUnknown
	}
}

func contextErrorCode(err error) model.ErrorCode {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrCodeTimeout
	}
	return model.ErrCodeUnknown
}
