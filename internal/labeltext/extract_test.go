package labeltext

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Extract", func() {
	var (
		text  string
		codes Codes
	)

	JustBeforeEach(func() {
		codes = Extract(text)
	})

	When("the text is empty", func() {
		BeforeEach(func() {
			text = ""
		})

		It("returns empty candidates", func() {
			Expect(codes).To(Equal(Codes{}))
		})
	})

	When("the text is garbage", func() {
		BeforeEach(func() {
			text = "~~ !! ?? \n\n ### abc"
		})

		It("returns empty candidates", func() {
			Expect(codes).To(Equal(Codes{}))
		})
	})

	When("the RG label carries an OCR-confused digit", func() {
		BeforeEach(func() {
			text = "R.G.: 2253O88657624-9"
		})

		It("repairs and sanitizes the RG", func() {
			Expect(codes.RGCode).To(Equal("2253088657624-9"))
		})

		It("derives the tag from the last seven RG digits", func() {
			Expect(codes.TagCode).To(Equal("6576249"))
		})
	})

	When("the RG value sits on the line after the label", func() {
		BeforeEach(func() {
			text = "CERVEJARIA\nR G\n2253088657624-9\n"
		})

		It("takes the next line", func() {
			Expect(codes.RGCode).To(Equal("2253088657624-9"))
		})
	})

	When("a serial label precedes the value", func() {
		BeforeEach(func() {
			text = "NUMERO SERIAL\nAB12-34567"
		})

		It("keeps the serial with its letter prefix", func() {
			Expect(codes.TagCode).To(Equal("AB12-34567"))
		})

		It("finds no RG", func() {
			Expect(codes.RGCode).To(BeEmpty())
		})
	})

	When("a labeled serial opens with a confusable letter", func() {
		BeforeEach(func() {
			text = "NUMERO SERIAL\nO1234567"
		})

		It("repairs the letter into a digit", func() {
			Expect(codes.TagCode).To(Equal("01234567"))
		})
	})

	When("an inline serial opens with a confusable letter", func() {
		BeforeEach(func() {
			text = "SERIAL: I234567"
		})

		It("repairs the letter into a digit", func() {
			Expect(codes.TagCode).To(Equal("1234567"))
		})
	})

	When("the serial after the label opens with S", func() {
		BeforeEach(func() {
			text = "SERIAL\nS8123456"
		})

		It("reads it as a five", func() {
			Expect(codes.TagCode).To(Equal("58123456"))
		})
	})

	When("the serial is on the same line", func() {
		BeforeEach(func() {
			text = "Serial: 8657624\nR.G. 2253088657624-9"
		})

		It("uses the inline serial", func() {
			Expect(codes.TagCode).To(Equal("8657624"))
			Expect(codes.RGCode).To(Equal("2253088657624-9"))
		})
	})

	When("a labeled serial is too short", func() {
		BeforeEach(func() {
			text = "SERIAL\n12-3"
		})

		It("rejects it", func() {
			Expect(codes.TagCode).To(BeEmpty())
		})
	})

	When("the label uses the ATIVO FIXO marker", func() {
		BeforeEach(func() {
			text = "PATRIMONIO ATIVO FIXO 01 8657624\nRG 2253088657624-9"
		})

		It("takes the asset number as tag", func() {
			Expect(codes.TagCode).To(Equal("8657624"))
		})
	})

	When("there are no labels at all", func() {
		BeforeEach(func() {
			text = "BRAHMA 220V\n2253088657624-9\n1234567\n"
		})

		It("picks the long token as RG", func() {
			Expect(codes.RGCode).To(Equal("2253088657624-9"))
		})

		It("picks a short token that is not part of the RG as tag", func() {
			Expect(codes.TagCode).To(Equal("1234567"))
		})
	})

	When("the only short token is a fragment of the RG", func() {
		BeforeEach(func() {
			text = "2253088657624-9\n8865762"
		})

		It("does not reuse the fragment and falls back to the suffix", func() {
			Expect(codes.RGCode).To(Equal("2253088657624-9"))
			Expect(codes.TagCode).To(Equal("6576249"))
		})
	})

	When("several long tokens compete for RG", func() {
		BeforeEach(func() {
			text = "12345678901 99999999999999"
		})

		It("prefers the one with most digits", func() {
			Expect(codes.RGCode).To(Equal("99999999999999"))
		})
	})
})

var _ = Describe("Extractor", func() {
	It("skips the suffix fallback when disabled", func() {
		e := &Extractor{}
		Expect(e.Extract("R.G.: 2253088657624-9")).To(Equal(Codes{RGCode: "2253088657624-9"}))
	})

	It("uses a custom fallback", func() {
		e := &Extractor{TagFallback: SuffixTagFallback(4)}
		Expect(e.Extract("R.G.: 2253088657624-9").TagCode).To(Equal("6249"))
	})

	It("ignores RGs shorter than the suffix", func() {
		Expect(SuffixTagFallback(7)("12-34")).To(BeEmpty())
	})
})
