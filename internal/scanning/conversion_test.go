package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func tinyImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img
}

func tinyPNG() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, tinyImage())).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("rasterize", func() {
	It("passes JPEG and PNG through", func() {
		data := tinyPNG()
		images, mimeType, err := rasterize(Document{Data: data, MIMEType: "image/png"})
		Expect(err).NotTo(HaveOccurred())
		Expect(mimeType).To(Equal("image/png"))
		Expect(images).To(Equal([][]byte{data}))
	})

	It("normalizes image/jpg", func() {
		_, mimeType, err := rasterize(Document{Data: []byte("jpeg"), MIMEType: "image/jpg"})
		Expect(err).NotTo(HaveOccurred())
		Expect(mimeType).To(Equal("image/jpeg"))
	})

	It("converts other images to PNG", func() {
		var buf bytes.Buffer
		Expect(gif.Encode(&buf, tinyImage(), nil)).To(Succeed())

		images, mimeType, err := rasterize(Document{Data: buf.Bytes(), MIMEType: "image/gif"})
		Expect(err).NotTo(HaveOccurred())
		Expect(mimeType).To(Equal("image/png"))
		Expect(images).To(HaveLen(1))

		_, format, err := image.Decode(bytes.NewReader(images[0]))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("png"))
	})

	It("fails on undecodable images", func() {
		_, _, err := rasterize(Document{Data: []byte("garbage"), MIMEType: "image/bmp"})
		Expect(err).To(MatchError(ContainSubstring("converting image to PNG")))
	})

	It("fails on an invalid PDF", func() {
		_, _, err := rasterize(Document{Data: []byte("not a pdf"), MIMEType: "application/pdf"})
		Expect(err).To(MatchError(ContainSubstring("converting PDF to image")))
	})
})

var _ = DescribeTable("IsHEIC",
	func(data []byte, mimeType string, expected bool) {
		Expect(IsHEIC(data, mimeType)).To(Equal(expected))
	},
	Entry("ftyp heic brand", []byte("\x00\x00\x00\x18ftypheic\x00\x00"), "", true),
	Entry("mime type", []byte("x"), "image/HEIC", true),
	Entry("jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0, 0, 0, 0, 0}, "image/jpeg", false),
)
