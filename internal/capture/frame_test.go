package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeSource struct {
	ready       bool
	img         image.Image
	width       int
	height      int
	snapshotErr error
}

func (f *fakeSource) Ready() bool            { return f.ready }
func (f *fakeSource) Dimensions() (int, int) { return f.width, f.height }
func (f *fakeSource) Close() error           { return nil }

func (f *fakeSource) Snapshot() (image.Image, error) {
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return f.img, nil
}

var _ = Describe("Grab", func() {
	It("fails with ErrNotReady when the source is not ready", func() {
		_, err := Grab(&fakeSource{})
		Expect(err).To(MatchError(ErrNotReady))
	})

	It("fails with ErrNotReady for a nil source", func() {
		_, err := Grab(nil)
		Expect(err).To(MatchError(ErrNotReady))
	})

	It("wraps snapshot errors", func() {
		boom := errors.New("boom")
		_, err := Grab(&fakeSource{ready: true, snapshotErr: boom, width: 4, height: 4})
		Expect(errors.Is(err, boom)).To(BeTrue())
	})

	It("sizes the frame to the source resolution", func() {
		src := &fakeSource{ready: true, img: imaging.New(10, 5, color.White), width: 20, height: 10}
		frame, err := Grab(src)
		Expect(err).NotTo(HaveOccurred())
		Expect(frame.Bounds().Dx()).To(Equal(20))
		Expect(frame.Bounds().Dy()).To(Equal(10))
	})
})

var _ = Describe("Crop", func() {
	It("cuts the region out of the frame", func() {
		frame := imaging.New(1000, 500, color.White)
		crop := Crop(frame, RGRegion)
		Expect(crop.Bounds().Dx()).To(Equal(800))
		Expect(crop.Bounds().Dy()).To(Equal(120))
	})
})

var _ = Describe("Enhance", func() {
	It("binarizes by luma", func() {
		img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
		img.Set(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		img.Set(1, 0, color.NRGBA{R: 200, G: 30, B: 30, A: 255}) // luma ~ 80
		img.Set(2, 0, color.NRGBA{R: 160, G: 160, B: 160, A: 255})

		out := Enhance(img)
		Expect(out.NRGBAAt(0, 0)).To(Equal(color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
		Expect(out.NRGBAAt(1, 0)).To(Equal(color.NRGBA{A: 255}))
		Expect(out.NRGBAAt(2, 0)).To(Equal(color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
	})
})

var _ = Describe("FrameBuffer", func() {
	It("is not ready until a frame is pushed", func() {
		b := NewFrameBuffer()
		Expect(b.Ready()).To(BeFalse())
		_, err := b.Snapshot()
		Expect(err).To(MatchError(ErrNotReady))

		b.Push(imaging.New(8, 6, color.Black))
		Expect(b.Ready()).To(BeTrue())
		w, h := b.Dimensions()
		Expect(w).To(Equal(8))
		Expect(h).To(Equal(6))
	})

	It("drops frames after close", func() {
		b := NewFrameBuffer()
		Expect(b.Close()).To(Succeed())
		b.Push(imaging.New(8, 6, color.Black))
		Expect(b.Ready()).To(BeFalse())
	})
})

var _ = Describe("StillSource", func() {
	It("decodes PNG data", func() {
		var buf bytes.Buffer
		Expect(png.Encode(&buf, imaging.New(12, 7, color.White))).To(Succeed())

		src, err := NewStillSource(buf.Bytes(), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(src.Ready()).To(BeTrue())
		w, h := src.Dimensions()
		Expect(w).To(Equal(12))
		Expect(h).To(Equal(7))
	})

	It("rejects undecodable data", func() {
		_, err := NewStillSource([]byte("not an image"), "image/jpeg")
		Expect(err).To(HaveOccurred())
	})

	It("reports a missing file as unavailable camera", func() {
		_, err := FileCamera{Path: "/nonexistent/label.png"}.Open(context.Background(), FacingEnvironment)
		Expect(err).To(MatchError(ErrUnavailable))
	})
})
