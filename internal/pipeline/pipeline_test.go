package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yabrams/precon-demo-sub001/common/llm"
	"github.com/yabrams/precon-demo-sub001/internal/docs"
	"github.com/yabrams/precon-demo-sub001/internal/model"
	"github.com/yabrams/precon-demo-sub001/internal/store"
)

const (
	extractReply = `{"work_packages": [{"package_id": "MEC", "name": "Mechanical", "trade": "Mechanical",
		"division_code": "23", "confidence": 0.8, "line_items": [
			{"description": "Install RTU-1", "quantity": 4, "unit": "EA"},
			{"description": "Install supply ductwork", "quantity": null}]}]}`

	reviewReply = `{"additions": [{"target_package_id": "MEC",
		"item": {"description": "Install condensate piping"}}]}`

	validationReply = `{"package_confidences": [{"package_id": "MEC", "overall": 0.9,
		"reasoning": "schedule cross-checked"}],
		"observations": [{"severity": "info", "category": "coordination_required",
		"title": "Verify power", "insight": "RTU power feeds need electrical coordination"}]}`

	electricalReply = `{"work_packages": [{"package_id": "ELE", "name": "Electrical", "trade": "Electrical",
		"division_code": "26", "confidence": 0.7, "line_items": [
			{"description": "Install panelboard PB-1", "quantity": 1, "unit": "EA"}]}]}`
)

// mockClient scripts responses by pass purpose and records every request.
type mockClient struct {
	name    string
	respond func(req llm.PassRequest) (*llm.PassResponse, error)

	mu    sync.Mutex
	calls []llm.PassRequest
}

func (m *mockClient) SubmitPass(_ context.Context, req llm.PassRequest) (*llm.PassResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	return m.respond(req)
}

func (m *mockClient) Model() string { return m.name }

func (m *mockClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockClient) purposes() []llm.Purpose {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Purpose, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.Purpose)
	}
	return out
}

func reply(text string) (*llm.PassResponse, error) {
	return &llm.PassResponse{
		Text:  text,
		Usage: llm.Usage{InputTokens: 1000, OutputTokens: 200},
		Model: "mock-model",
	}, nil
}

func scriptedClient() *mockClient {
	return &mockClient{
		name: "mock-model",
		respond: func(req llm.PassRequest) (*llm.PassResponse, error) {
			switch req.Purpose {
			case llm.PurposeExtract:
				return reply(extractReply)
			case llm.PurposeReview, llm.PurposeDeepDive:
				return reply(reviewReply)
			default:
				return reply(validationReply)
			}
		},
	}
}

// fakeRenderer returns the same canned pages for every document.
type fakeRenderer struct {
	pages []model.RenderedPage
}

func (r *fakeRenderer) RenderPages(context.Context, llm.Document) ([]model.RenderedPage, error) {
	return r.pages, nil
}

func documentNames(docs []llm.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Name)
	}
	return out
}

func newSession(profile model.PipelineProfile) *model.ExtractionSession {
	return &model.ExtractionSession{
		ID:        100,
		ProjectID: "proj-1",
		Config:    model.ExtractionConfig{Profile: profile},
		Documents: []model.ExtractionDocument{
			{
				ID:   "1",
				Name: "plans.pdf",
				Type: model.DocumentTypeDrawing,
				Source: model.DocumentSource{
					Data: []byte("drawing bytes"),
				},
			},
		},
	}
}

var _ = Describe("Pipeline", func() {
	var (
		primary *mockClient
		st      *store.MemoryExtractionStore
	)

	BeforeEach(func() {
		primary = scriptedClient()
		st = store.NewMemoryExtractionStore()
	})

	newPipeline := func(validator llm.Client) *Pipeline {
		return New(Deps{
			Primary:   primary,
			Validator: validator,
			Documents: docs.NewProvider(),
			Store:     st,
		})
	}

	Describe("a standard run", func() {
		It("completes all three passes and reaches 100 percent", func() {
			var events []model.ProgressEvent
			sess, err := newPipeline(nil).Run(context.Background(), newSession(model.ProfileStandard),
				func(e model.ProgressEvent) { events = append(events, e) })

			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Status).To(Equal(model.StatusCompleted))
			Expect(sess.Progress).To(Equal(100))
			Expect(sess.Passes).To(HaveLen(3))
			Expect(sess.CompletedAt).NotTo(BeNil())

			// 2 extracted + 1 added in review.
			Expect(sess.ItemCount()).To(Equal(3))
			Expect(sess.WorkPackages).To(HaveLen(1))
			Expect(sess.WorkPackages[0].Confidence.Overall).To(Equal(0.9))
			Expect(sess.Observations).NotTo(BeEmpty())

			Expect(primary.purposes()).To(Equal([]llm.Purpose{
				llm.PurposeExtract, llm.PurposeReview, llm.PurposeFinalValidate,
			}))

			// Progress only climbs.
			last := 0
			for _, e := range events {
				Expect(e.Progress).To(BeNumerically(">=", last))
				last = e.Progress
			}
			Expect(last).To(Equal(100))

			stored, getErr := st.GetByID(context.Background(), sess.ID)
			Expect(getErr).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(model.StatusCompleted))
		})

		It("records token usage on each pass", func() {
			sess, err := newPipeline(nil).Run(context.Background(), newSession(model.ProfileStandard), nil)
			Expect(err).NotTo(HaveOccurred())
			for _, pass := range sess.Passes {
				Expect(pass.Usage.InputTokens).To(Equal(1000))
				Expect(pass.Usage.OutputTokens).To(Equal(200))
				Expect(pass.Model).To(Equal("mock-model"))
			}
		})

		It("sends prior state to review but not to extraction", func() {
			_, err := newPipeline(nil).Run(context.Background(), newSession(model.ProfileStandard), nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(primary.calls[0].Context).To(BeEmpty())
			Expect(primary.calls[1].Context).To(ContainSubstring("Install RTU-1"))
		})

		It("keeps specification documents out of the first pass", func() {
			sess := newSession(model.ProfileStandard)
			sess.Documents = append(sess.Documents, model.ExtractionDocument{
				ID:     "2",
				Name:   "division-23-spec.txt",
				Type:   model.DocumentTypeSpecification,
				Source: model.DocumentSource{Data: []byte("spec text")},
			})

			_, err := newPipeline(nil).Run(context.Background(), sess, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(documentNames(primary.calls[0].Documents)).To(Equal([]string{"plans.pdf"}))
			// Later passes see the specification as reference material.
			Expect(documentNames(primary.calls[1].Documents)).To(ContainElement("division-23-spec.txt"))
			Expect(documentNames(primary.calls[2].Documents)).To(ContainElement("division-23-spec.txt"))
		})

		It("still sends documents when only specifications exist", func() {
			sess := newSession(model.ProfileStandard)
			sess.Documents[0].Type = model.DocumentTypeSpecification

			_, err := newPipeline(nil).Run(context.Background(), sess, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(documentNames(primary.calls[0].Documents)).To(Equal([]string{"plans.pdf"}))
		})
	})

	Describe("a comprehensive run", func() {
		It("runs five passes including deep dive and cross-validation", func() {
			sess, err := newPipeline(nil).Run(context.Background(), newSession(model.ProfileComprehensive), nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Status).To(Equal(model.StatusCompleted))
			Expect(sess.Passes).To(HaveLen(5))
			Expect(primary.purposes()).To(Equal([]llm.Purpose{
				llm.PurposeExtract, llm.PurposeReview, llm.PurposeDeepDive,
				llm.PurposeCrossValidate, llm.PurposeFinalValidate,
			}))
		})

		It("uses the validator for cross-validation when configured", func() {
			validator := &mockClient{name: "validator-model"}
			validator.respond = func(llm.PassRequest) (*llm.PassResponse, error) {
				return &llm.PassResponse{
					Text:  validationReply,
					Usage: llm.Usage{InputTokens: 1000, OutputTokens: 200},
					Model: "validator-model",
				}, nil
			}

			sess, err := newPipeline(validator).Run(context.Background(), newSession(model.ProfileComprehensive), nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Status).To(Equal(model.StatusCompleted))
			Expect(validator.callCount()).To(Equal(1))
			Expect(validator.calls[0].Purpose).To(Equal(llm.PurposeCrossValidate))
			Expect(primary.purposes()).NotTo(ContainElement(llm.PurposeCrossValidate))

			// The cross-validation pass and its observations carry the model
			// that actually produced them.
			Expect(sess.Passes[3].Model).To(Equal("validator-model"))
			Expect(sess.Observations[0].Metadata.ExtractedBy).To(Equal("validator-model"))
		})

		It("falls back to self-validation when the validator is down", func() {
			validator := &mockClient{
				name: "validator-model",
				respond: func(llm.PassRequest) (*llm.PassResponse, error) {
					return nil, llm.ErrAuthentication
				},
			}

			sess, err := newPipeline(validator).Run(context.Background(), newSession(model.ProfileComprehensive), nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Status).To(Equal(model.StatusCompleted))
			Expect(sess.Passes[3].Error).To(BeNil())
			// Primary handled the cross-validation pass too.
			Expect(primary.purposes()).To(ContainElement(llm.PurposeCrossValidate))
		})
	})

	Describe("failure handling", func() {
		It("fails fast with no documents", func() {
			sess := newSession(model.ProfileStandard)
			sess.Documents = nil

			got, err := newPipeline(nil).Run(context.Background(), sess, nil)

			var extractionErr *model.ExtractionError
			Expect(errors.As(err, &extractionErr)).To(BeTrue())
			Expect(extractionErr.Code).To(Equal(model.ErrCodeNoDocuments))
			Expect(got.Status).To(Equal(model.StatusFailed))
			Expect(primary.callCount()).To(BeZero())
		})

		It("fails the run when pass 1 fails", func() {
			primary.respond = func(llm.PassRequest) (*llm.PassResponse, error) {
				return nil, llm.ErrAuthentication
			}

			got, err := newPipeline(nil).Run(context.Background(), newSession(model.ProfileStandard), nil)

			var extractionErr *model.ExtractionError
			Expect(errors.As(err, &extractionErr)).To(BeTrue())
			Expect(extractionErr.Code).To(Equal(model.ErrCodeAuthentication))
			Expect(extractionErr.PassNumber).To(Equal(1))
			Expect(got.Status).To(Equal(model.StatusFailed))
			Expect(got.Error).NotTo(BeNil())
		})

		It("continues after a later pass fails", func() {
			primary.respond = func(req llm.PassRequest) (*llm.PassResponse, error) {
				switch req.Purpose {
				case llm.PurposeExtract:
					return reply(extractReply)
				case llm.PurposeReview:
					return nil, llm.ErrMalformedResponse
				default:
					return reply(validationReply)
				}
			}

			sess, err := newPipeline(nil).Run(context.Background(), newSession(model.ProfileStandard), nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Status).To(Equal(model.StatusCompleted))
			Expect(sess.Passes).To(HaveLen(3))
			Expect(sess.Passes[1].Error).NotTo(BeNil())
			Expect(sess.Passes[1].ItemsAdded).To(BeZero())
			// The pass-1 baseline survived the failed review.
			Expect(sess.ItemCount()).To(Equal(2))
		})

		It("stops retrying once the run is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			primary.respond = func(llm.PassRequest) (*llm.PassResponse, error) {
				cancel()
				return nil, llm.ErrRateLimited
			}

			got, err := newPipeline(nil).Run(ctx, newSession(model.ProfileStandard), nil)

			var extractionErr *model.ExtractionError
			Expect(errors.As(err, &extractionErr)).To(BeTrue())
			Expect(got.Status).To(Equal(model.StatusFailed))
			// The backoff observes cancellation instead of sleeping toward a
			// second attempt.
			Expect(primary.callCount()).To(Equal(1))
		})

		It("fails when the context is cancelled between passes", func() {
			ctx, cancel := context.WithCancel(context.Background())
			primary.respond = func(req llm.PassRequest) (*llm.PassResponse, error) {
				cancel()
				return reply(extractReply)
			}

			got, err := newPipeline(nil).Run(ctx, newSession(model.ProfileStandard), nil)

			var extractionErr *model.ExtractionError
			Expect(errors.As(err, &extractionErr)).To(BeTrue())
			Expect(extractionErr.Code).To(Equal(model.ErrCodeUnknown))
			Expect(got.Status).To(Equal(model.StatusFailed))
			// Pass 1 completed before the cancellation was observed.
			Expect(got.Passes).To(HaveLen(1))
		})
	})

	Describe("large-document mode", func() {
		var renderer *fakeRenderer

		BeforeEach(func() {
			renderer = &fakeRenderer{pages: []model.RenderedPage{
				{Number: 1, SheetNumber: "M-101", EstimatedTokens: 500},
				{Number: 2, SheetNumber: "M-102", EstimatedTokens: 500},
				{Number: 3, SheetNumber: "E-101", EstimatedTokens: 500},
				{Number: 4, SheetNumber: "E-102", EstimatedTokens: 500},
			}}
			// Batch extraction requests name the batch trade; later passes use
			// the shared scripted replies.
			primary.respond = func(req llm.PassRequest) (*llm.PassResponse, error) {
				switch req.Purpose {
				case llm.PurposeExtract:
					if strings.Contains(req.Instructions, "Electrical") {
						return reply(electricalReply)
					}
					return reply(extractReply)
				case llm.PurposeReview:
					return reply(reviewReply)
				default:
					return reply(validationReply)
				}
			}
		})

		newLargePipeline := func() *Pipeline {
			return New(Deps{
				Primary:   primary,
				Documents: docs.NewProvider(),
				Renderer:  renderer,
				Store:     st,
			})
		}

		newLargeSession := func() *model.ExtractionSession {
			sess := newSession(model.ProfileStandard)
			sess.Config.LargeDocumentPages = 4
			return sess
		}

		It("extracts per-trade batches and merges the results", func() {
			sess, err := newLargePipeline().Run(context.Background(), newLargeSession(), nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Status).To(Equal(model.StatusCompleted))
			// One call per trade batch, then review and validation.
			Expect(primary.purposes()).To(Equal([]llm.Purpose{
				llm.PurposeExtract, llm.PurposeExtract,
				llm.PurposeReview, llm.PurposeFinalValidate,
			}))
			Expect(sess.WorkPackages).To(HaveLen(2))
			// Pass 1 usage is the sum across batches.
			Expect(sess.Passes[0].Usage.InputTokens).To(Equal(2000))
			Expect(sess.Passes[0].Usage.OutputTokens).To(Equal(400))
		})

		It("continues when a single batch fails", func() {
			scripted := primary.respond
			primary.respond = func(req llm.PassRequest) (*llm.PassResponse, error) {
				if req.Purpose == llm.PurposeExtract && strings.Contains(req.Instructions, "Electrical") {
					return nil, llm.ErrMalformedResponse
				}
				return scripted(req)
			}

			sess, err := newLargePipeline().Run(context.Background(), newLargeSession(), nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Status).To(Equal(model.StatusCompleted))
			// The failed batch cost one trade's packages, not the run.
			Expect(sess.Passes[0].Error).To(BeNil())
			Expect(sess.WorkPackages).To(HaveLen(1))
			Expect(sess.WorkPackages[0].Trade).To(Equal("Mechanical"))
		})

		It("fails the run when every batch fails", func() {
			primary.respond = func(req llm.PassRequest) (*llm.PassResponse, error) {
				return nil, llm.ErrMalformedResponse
			}

			got, err := newLargePipeline().Run(context.Background(), newLargeSession(), nil)

			var extractionErr *model.ExtractionError
			Expect(errors.As(err, &extractionErr)).To(BeTrue())
			Expect(extractionErr.Code).To(Equal(model.ErrCodeModelResponse))
			Expect(extractionErr.PassNumber).To(Equal(1))
			Expect(got.Status).To(Equal(model.StatusFailed))
		})
	})

	Describe("baseline observations", func() {
		It("synthesizes observations when the run produced none", func() {
			manyUnquantified := `{"work_packages": [{"package_id": "MEC", "name": "Mechanical",
				"trade": "Mechanical", "division_code": "23", "line_items": [
				{"description": "Install RTU-1"}, {"description": "Install RTU-2"},
				{"description": "Install exhaust fan EF-1"}, {"description": "Install unit heater UH-1"},
				{"description": "Furnish thermostats"}, {"description": "Provide controls wiring"}]}]}`
			primary.respond = func(req llm.PassRequest) (*llm.PassResponse, error) {
				if req.Purpose == llm.PurposeExtract {
					return reply(manyUnquantified)
				}
				return reply(`{}`)
			}

			sess, err := newPipeline(nil).Run(context.Background(), newSession(model.ProfileStandard), nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Observations).NotTo(BeEmpty())
			Expect(sess.Observations[0].Category).To(Equal(model.CategoryMissingInformation))
		})
	})
})
