package equipment

import (
	"context"
	"errors"
	"image/color"
	"time"

	"github.com/disintegration/imaging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/equipment-scanner/internal/allocation"
	"github.com/zombor/equipment-scanner/internal/capture"
	"github.com/zombor/equipment-scanner/internal/scanner"
)

var _ = Describe("Service", func() {
	var (
		ctx        context.Context
		db         *mockDB
		recognizer *labelRecognizer
		looker     *mockLooker
		template   scanner.Config
		now        time.Time
		service    *Service
	)

	stageOf := func(id string) func() scanner.Stage {
		return func() scanner.Stage {
			view, err := service.View(id)
			Expect(err).NotTo(HaveOccurred())
			return view.Stage
		}
	}

	pushBlankFrame := func(id string) {
		Expect(service.PushFrame(id, imaging.New(1000, 500, color.White))).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		db = newMockDB()
		recognizer = &labelRecognizer{rgText: rgLabel, tagText: tagLabel}
		looker = &mockLooker{records: map[string][]allocation.Record{
			"2253088657624-9": {{InventoryItemID: 7, RGCode: "2253088657624-9", ClientCode: "C001"}},
		}}
		template = scanner.Config{Recognizer: recognizer, Interval: 20 * time.Millisecond}
		now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	})

	JustBeforeEach(func() {
		service = NewServiceWithDeps(db, template, looker, &mockIDGenerator{}, &mockTimeSource{now: now})
	})

	AfterEach(func() {
		Expect(service.Close()).To(Succeed())
	})

	Describe("OpenSession", func() {
		When("filling a new draft", func() {
			var (
				session *scanner.Session
				err     error
			)

			JustBeforeEach(func() {
				session, err = service.OpenSession(ctx, scanner.ModeFormFill, "")
			})

			It("creates the draft", func() {
				Expect(err).NotTo(HaveOccurred())
				draft, getErr := db.GetDraft("id-1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(draft.CreatedAt).To(Equal(now))
			})

			It("registers an open session for the draft", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(session.ID()).To(Equal("id-2"))

				view, viewErr := service.View("id-2")
				Expect(viewErr).NotTo(HaveOccurred())
				Expect(view.Open).To(BeTrue())
				Expect(view.Mode).To(Equal(scanner.ModeFormFill))
				Expect(view.DraftID).To(Equal("id-1"))
				Expect(view.Workspace).To(BeEmpty())
			})
		})

		When("filling an existing draft", func() {
			BeforeEach(func() {
				Expect(db.SaveDraft(&Draft{ID: "draft-9", RGCode: "OLD"})).To(Succeed())
			})

			It("reuses it", func() {
				session, err := service.OpenSession(ctx, scanner.ModeFormFill, "draft-9")
				Expect(err).NotTo(HaveOccurred())

				view, err := service.View(session.ID())
				Expect(err).NotTo(HaveOccurred())
				Expect(view.DraftID).To(Equal("draft-9"))

				drafts, err := db.ListDrafts()
				Expect(err).NotTo(HaveOccurred())
				Expect(drafts).To(HaveLen(1))
			})
		})

		When("the draft cannot be created", func() {
			BeforeEach(func() {
				db.saveErr = errors.New("disk full")
			})

			It("returns the error without registering a session", func() {
				session, err := service.OpenSession(ctx, scanner.ModeFormFill, "")
				Expect(err).To(MatchError(ContainSubstring("creating draft")))
				Expect(session).To(BeNil())
			})
		})

		When("looking up allocations without a lookup client", func() {
			JustBeforeEach(func() {
				service = NewServiceWithDeps(db, template, nil, &mockIDGenerator{}, &mockTimeSource{now: now})
			})

			It("returns an error", func() {
				session, err := service.OpenSession(ctx, scanner.ModeAllocationLookup, "")
				Expect(err).To(HaveOccurred())
				Expect(session).To(BeNil())
			})
		})

		When("the camera cannot be opened", func() {
			BeforeEach(func() {
				template.Camera = capture.FileCamera{Path: "/nonexistent/label.png"}
			})

			It("keeps the session so the operator sees the error", func() {
				session, err := service.OpenSession(ctx, scanner.ModeFormFill, "")
				Expect(err).To(MatchError(scanner.ErrCameraUnavailable))
				Expect(session).NotTo(BeNil())

				view, viewErr := service.View(session.ID())
				Expect(viewErr).NotTo(HaveOccurred())
				Expect(view.Error).To(Equal("Não foi possível acessar a câmera."))
			})
		})
	})

	Describe("filling a draft from uploaded frames", func() {
		var id string

		JustBeforeEach(func() {
			session, err := service.OpenSession(ctx, scanner.ModeFormFill, "draft-1")
			Expect(err).NotTo(HaveOccurred())
			id = session.ID()
			pushBlankFrame(id)
		})

		It("detects the RG and waits for confirmation", func() {
			Eventually(stageOf(id)).Should(Equal(scanner.StagePendingConfirmation))

			view, err := service.View(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.Pending.RGCode).To(Equal("2253088657624-9"))

			draft, err := db.GetDraft("draft-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(draft.RGCode).To(BeEmpty())
		})

		It("writes both codes into the draft once confirmed", func() {
			session, err := service.Session(id)
			Expect(err).NotTo(HaveOccurred())

			Eventually(stageOf(id)).Should(Equal(scanner.StagePendingConfirmation))
			Expect(session.Confirm(ctx)).To(Succeed())

			Eventually(func() string {
				return session.Snapshot().Pending.TagCode
			}).Should(Equal("AB12-34567"))
			Expect(session.Confirm(ctx)).To(Succeed())

			draft, err := db.GetDraft("draft-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(draft.RGCode).To(Equal("2253088657624-9"))
			Expect(draft.TagCode).To(Equal("AB12-34567"))
			Expect(draft.UpdatedAt).To(Equal(now))

			view, err := service.View(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.Open).To(BeFalse())
			Expect(view.Completion).NotTo(BeNil())

			_, err = service.View(id)
			Expect(err).To(MatchError(ErrSessionNotFound))
		})

		It("keeps an open session across views", func() {
			Eventually(stageOf(id)).Should(Equal(scanner.StagePendingConfirmation))
			_, err := service.View(id)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.View(id)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("looking up allocations", func() {
		It("shares lookups within a workspace", func() {
			session, err := service.OpenSession(ctx, scanner.ModeAllocationLookup, "bench-2")
			Expect(err).NotTo(HaveOccurred())
			pushBlankFrame(session.ID())

			Eventually(stageOf(session.ID())).Should(Equal(scanner.StagePendingConfirmation))
			Expect(session.Confirm(ctx)).To(Succeed())

			Eventually(func() bool {
				return service.Lookup("bench-2").Found()
			}).Should(BeTrue())
			Expect(service.Lookup("bench-2").Result.Items[0].ClientCode).To(Equal("C001"))
			Expect(service.Lookup("bench-3").RequestID).To(BeZero())
			Expect(service.coordinators).NotTo(HaveKey("bench-3"))
			Expect(looker.Calls()).To(Equal([]string{"2253088657624-9"}))

			view, err := service.View(session.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(view.Workspace).To(Equal("bench-2"))
		})
	})

	Describe("Lookup", func() {
		It("reports an empty outcome without tracking unknown workspaces", func() {
			for _, workspace := range []string{"ws-1", "ws-2", "ws-3"} {
				Expect(service.Lookup(workspace)).To(Equal(allocation.Outcome{}))
			}
			Expect(service.coordinators).To(BeEmpty())
		})
	})

	Describe("PushFrame", func() {
		When("the session does not exist", func() {
			It("returns ErrSessionNotFound", func() {
				err := service.PushFrame("missing", imaging.New(10, 10, color.White))
				Expect(err).To(MatchError(ErrSessionNotFound))
			})
		})

		When("the session reads from a local camera", func() {
			BeforeEach(func() {
				buf := capture.NewFrameBuffer()
				template.Camera = capture.CameraFunc(func(ctx context.Context, facing capture.Facing) (capture.FrameSource, error) {
					return buf, nil
				})
			})

			It("returns ErrNoFrameBuffer", func() {
				session, err := service.OpenSession(ctx, scanner.ModeFormFill, "")
				Expect(err).NotTo(HaveOccurred())
				err = service.PushFrame(session.ID(), imaging.New(10, 10, color.White))
				Expect(err).To(MatchError(ErrNoFrameBuffer))
			})
		})
	})

	Describe("CloseSession", func() {
		It("closes and forgets the session", func() {
			session, err := service.OpenSession(ctx, scanner.ModeFormFill, "")
			Expect(err).NotTo(HaveOccurred())

			Expect(service.CloseSession(session.ID())).To(Succeed())
			Expect(session.Snapshot().Open).To(BeFalse())

			_, err = service.View(session.ID())
			Expect(err).To(MatchError(ErrSessionNotFound))
		})

		It("returns ErrSessionNotFound for unknown sessions", func() {
			Expect(service.CloseSession("missing")).To(MatchError(ErrSessionNotFound))
		})
	})

	Describe("DeleteDraft", func() {
		When("the draft exists", func() {
			BeforeEach(func() {
				Expect(db.SaveDraft(&Draft{ID: "draft-1"})).To(Succeed())
			})

			It("removes it", func() {
				Expect(service.DeleteDraft("draft-1")).To(Succeed())
				_, err := service.GetDraft("draft-1")
				Expect(err).To(MatchError(ErrDraftNotFound))
			})
		})

		When("the draft does not exist", func() {
			It("returns ErrDraftNotFound", func() {
				Expect(service.DeleteDraft("missing")).To(MatchError(ErrDraftNotFound))
			})
		})
	})

	Describe("Close", func() {
		It("closes every session", func() {
			first, err := service.OpenSession(ctx, scanner.ModeFormFill, "")
			Expect(err).NotTo(HaveOccurred())
			second, err := service.OpenSession(ctx, scanner.ModeAllocationLookup, "")
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Close()).To(Succeed())
			Expect(first.Snapshot().Open).To(BeFalse())
			Expect(second.Snapshot().Open).To(BeFalse())
			_, err = service.Session(first.ID())
			Expect(err).To(MatchError(ErrSessionNotFound))
		})
	})
})
