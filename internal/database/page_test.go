package database

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = DescribeTable("NewPage",
	func(rawPage, rawSize string, expected Page) {
		Expect(NewPage(rawPage, rawSize)).To(Equal(expected))
	},
	Entry("defaults", "", "", Page{Number: 1, Size: 25}),
	Entry("explicit values", "3", "10", Page{Number: 3, Size: 10}),
	Entry("page below one", "-4", "10", Page{Number: 1, Size: 10}),
	Entry("zero size falls back to default", "1", "0", Page{Number: 1, Size: 25}),
	Entry("negative size clamps to one", "1", "-5", Page{Number: 1, Size: 1}),
	Entry("oversized page clamps to 100", "1", "500", Page{Number: 1, Size: 100}),
	Entry("garbage", "abc", "xyz", Page{Number: 1, Size: 25}),
	Entry("huge page clamps", "99999999999999999", "100", Page{Number: MaxPageNumber, Size: 100}),
	Entry("page beyond int range clamps", "99999999999999999999999", "10", Page{Number: MaxPageNumber, Size: 10}),
)

var _ = Describe("Page", func() {
	It("computes offset and limit", func() {
		p := Page{Number: 3, Size: 25}
		Expect(p.Offset()).To(Equal(uint64(50)))
		Expect(p.Limit()).To(Equal(uint64(25)))
	})

	It("keeps the offset of the last clamped page within int", func() {
		p := NewPage("99999999999999999", "100")
		Expect(p.Offset()).To(BeNumerically("<=", uint64(math.MaxInt)))
		Expect(p.Offset()).To(BeNumerically(">", uint64(0)))
	})
})
