package ocr

import (
	"context"
	"errors"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/equipment-scanner/internal/capture"
	"github.com/zombor/equipment-scanner/internal/labeltext"
)

var _ = Describe("PassRunner", func() {
	var (
		buffer *capture.FrameBuffer
		rec    *mockRecognizer
		runner *PassRunner
		req    PassRequest
		result *PassResult
		err    error
	)

	BeforeEach(func() {
		buffer = capture.NewFrameBuffer()
		buffer.Push(imaging.New(200, 100, color.White))
		rec = &mockRecognizer{}
		req = PassRequest{Phase: capture.PhaseRG, Quick: true, Silent: true}
	})

	JustBeforeEach(func() {
		runner = NewPassRunner(buffer, rec)
		result, err = runner.Run(context.Background(), req)
	})

	When("the RG is readable", func() {
		BeforeEach(func() {
			rec.texts = []string{"R.G.: 2253O88657624-9"}
		})

		It("returns the repaired RG as the phase code", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Phase).To(Equal(capture.PhaseRG))
			Expect(result.Code).To(Equal("2253088657624-9"))
			Expect(result.RGCode).To(Equal("2253088657624-9"))
		})

		It("passes the label languages", func() {
			Expect(rec.langs).To(Equal([]string{"por", "eng"}))
		})

		It("crops the RG region", func() {
			Expect(rec.images).To(HaveLen(1))
			b := rec.images[0].Bounds()
			Expect(b.Dx()).To(Equal(160))
			Expect(b.Dy()).To(Equal(24))
		})

		It("updates the preview", func() {
			p := runner.Preview()
			Expect(p.RawText).To(Equal("R.G.: 2253O88657624-9"))
			Expect(p.RGCode).To(Equal("2253088657624-9"))
			Expect(p.UpdatedAt).NotTo(BeZero())
		})

		It("releases the busy flag", func() {
			Expect(runner.Busy()).To(BeFalse())
		})
	})

	When("a quick pass finds nothing", func() {
		BeforeEach(func() {
			rec.texts = []string{"NOTHING HERE", "R.G. 2253088657624-9"}
		})

		It("runs a single pass", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Code).To(BeEmpty())
			Expect(rec.Calls()).To(Equal(1))
		})
	})

	When("a full pass finds nothing on the raw crop", func() {
		BeforeEach(func() {
			req.Quick = false
			rec.texts = []string{"NOTHING HERE", "R.G. 2253088657624-9"}
		})

		It("retries on the enhanced crop", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Calls()).To(Equal(2))
			Expect(result.Code).To(Equal("2253088657624-9"))
			Expect(result.RawText).To(Equal("R.G. 2253088657624-9"))
		})
	})

	When("the enhanced crop returns no text", func() {
		BeforeEach(func() {
			req.Quick = false
			rec.texts = []string{"NOTHING HERE", "   "}
		})

		It("keeps the raw text", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.RawText).To(Equal("NOTHING HERE"))
		})
	})

	When("a full pass finds the code on the raw crop", func() {
		BeforeEach(func() {
			req.Quick = false
			rec.texts = []string{"R.G. 2253088657624-9"}
		})

		It("skips the enhanced pass", func() {
			Expect(rec.Calls()).To(Equal(1))
		})
	})

	When("reading the tag phase", func() {
		BeforeEach(func() {
			req.Phase = capture.PhaseTag
			rec.texts = []string{"NUMERO SERIAL\nAB12-34567"}
		})

		It("returns the tag as the phase code", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Code).To(Equal("AB12-34567"))
		})
	})

	When("the camera has no frame", func() {
		BeforeEach(func() {
			buffer = capture.NewFrameBuffer()
		})

		It("fails with ErrCameraNotReady without recognizing", func() {
			Expect(err).To(MatchError(ErrCameraNotReady))
			Expect(result).To(BeNil())
			Expect(rec.Calls()).To(Equal(0))
		})
	})

	When("the recognizer fails", func() {
		BeforeEach(func() {
			rec.err = errors.New("engine crashed")
		})

		It("wraps the failure in a PassError", func() {
			var passErr *PassError
			Expect(errors.As(err, &passErr)).To(BeTrue())
			Expect(passErr.Phase).To(Equal(capture.PhaseRG))
			Expect(result).To(BeNil())
		})
	})

	When("the backend cannot load", func() {
		BeforeEach(func() {
			rec.err = &BackendLoadError{Backend: "tesseract", Err: errors.New("no tessdata")}
		})

		It("returns the BackendLoadError unwrapped", func() {
			var loadErr *BackendLoadError
			Expect(errors.As(err, &loadErr)).To(BeTrue())
			var passErr *PassError
			Expect(errors.As(err, &passErr)).To(BeFalse())
		})
	})
})

var _ = Describe("PassRunner concurrency", func() {
	It("rejects a second pass while one is in flight", func() {
		buffer := capture.NewFrameBuffer()
		buffer.Push(imaging.New(200, 100, color.White))
		rec := &mockRecognizer{texts: []string{"R.G. 2253088657624-9"}, block: make(chan struct{})}
		runner := NewPassRunner(buffer, rec)

		done := make(chan *PassResult)
		go func() {
			defer GinkgoRecover()
			res, err := runner.Run(context.Background(), PassRequest{Phase: capture.PhaseRG, Quick: true})
			Expect(err).NotTo(HaveOccurred())
			done <- res
		}()

		Eventually(runner.Busy).Should(BeTrue())

		res, err := runner.Run(context.Background(), PassRequest{Phase: capture.PhaseRG, Quick: true})
		Expect(err).To(MatchError(ErrBusy))
		Expect(res).To(BeNil())
		Expect(rec.Calls()).To(Equal(1))

		close(rec.block)
		Eventually(done).Should(Receive(HaveField("Code", "2253088657624-9")))
		Expect(runner.Busy()).To(BeFalse())
	})
})

var _ = Describe("Preview", func() {
	It("keeps earlier candidates when a later pass finds none", func() {
		buffer := capture.NewFrameBuffer()
		buffer.Push(imaging.New(200, 100, color.White))
		rec := &mockRecognizer{texts: []string{"R.G. 2253088657624-9", strings.Repeat("X ", 200)}}
		runner := NewPassRunnerWithDeps(buffer, rec, &labeltext.Extractor{}, DefaultLanguages)

		_, err := runner.Run(context.Background(), PassRequest{Phase: capture.PhaseRG, Quick: true})
		Expect(err).NotTo(HaveOccurred())
		_, err = runner.Run(context.Background(), PassRequest{Phase: capture.PhaseRG, Quick: true})
		Expect(err).NotTo(HaveOccurred())

		p := runner.Preview()
		Expect(p.RGCode).To(Equal("2253088657624-9"))
		Expect(p.TagCode).To(BeEmpty())
		Expect([]rune(p.RawText)).To(HaveLen(140))
	})
})
