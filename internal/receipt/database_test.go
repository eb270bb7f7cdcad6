package receipt

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zombor/receipt-capture/internal/database"
)

var _ = Describe("SQLDB", func() {
	var (
		ctx  context.Context
		conn *database.DB
		repo *SQLDB
	)

	seed := func(vendor, amount, date string, status Status, category Category, location string) int64 {
		id, err := repo.InsertReceipt(ctx, &Receipt{
			Vendor:    vendor,
			Amount:    decimal.RequireFromString(amount),
			Date:      date,
			Tax:       decimal.Zero,
			Status:    status,
			Category:  category,
			Location:  location,
			Time:      "09:30 AM",
			CreatedAt: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		})
		Expect(err).NotTo(HaveOccurred())
		return id
	}

	ids := func(receipts []*Receipt) []int64 {
		out := make([]int64, 0, len(receipts))
		for _, r := range receipts {
			out = append(out, r.ID)
		}
		return out
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		conn, err = database.Open(ctx, database.Config{
			Driver: database.DriverSQLite,
			DSN:    filepath.Join(GinkgoT().TempDir(), "receipts.db"),
		}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		repo = NewSQLDB(conn)
	})

	AfterEach(func() {
		conn.Close()
	})

	Describe("InsertReceipt and GetReceipt", func() {
		It("round trips every column", func() {
			id, err := repo.InsertReceipt(ctx, &Receipt{
				Vendor:    "Acme Fuel Co",
				Amount:    decimal.RequireFromString("125.50"),
				Date:      "2025-03-01",
				Tax:       decimal.RequireFromString("10.25"),
				Status:    StatusVerified,
				Category:  CategoryFuel,
				Location:  "Field Office A",
				Time:      "02:15 PM",
				FileKey:   "1_receipt.jpg",
				MIMEType:  "image/jpeg",
				CreatedAt: time.Date(2025, 3, 1, 14, 15, 0, 0, time.UTC),
			})
			Expect(err).NotTo(HaveOccurred())

			r, err := repo.GetReceipt(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.ID).To(Equal(id))
			Expect(r.Vendor).To(Equal("Acme Fuel Co"))
			Expect(r.Amount.Equal(decimal.RequireFromString("125.5"))).To(BeTrue())
			Expect(r.Tax.Equal(decimal.RequireFromString("10.25"))).To(BeTrue())
			Expect(r.Status).To(Equal(StatusVerified))
			Expect(r.Category).To(Equal(CategoryFuel))
			Expect(r.Location).To(Equal("Field Office A"))
			Expect(r.Time).To(Equal("02:15 PM"))
			Expect(r.FileKey).To(Equal("1_receipt.jpg"))
			Expect(r.MIMEType).To(Equal("image/jpeg"))
			Expect(r.CreatedAt.Equal(time.Date(2025, 3, 1, 14, 15, 0, 0, time.UTC))).To(BeTrue())
		})

		It("rejects a category outside the enumeration", func() {
			_, err := repo.InsertReceipt(ctx, &Receipt{
				Vendor: "X", Date: "2025-03-01", Status: StatusVerified, Category: "Snacks",
				Location: "L", Time: "01:00 PM",
			})
			Expect(err).To(HaveOccurred())
		})

		It("returns ErrNotFound for a missing id", func() {
			_, err := repo.GetReceipt(ctx, 99)
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("ListReceipts", func() {
		var fuel, lumber, tools int64

		BeforeEach(func() {
			fuel = seed("Acme Fuel Co", "125.50", "2025-03-01", StatusVerified, CategoryFuel, "Field Office A")
			lumber = seed("Bob's Lumber", "40.00", "2025-02-10", StatusFlagged, CategoryMaterials, "Site 7")
			tools = seed("Tool Barn", "300.00", "2025-03-15", StatusVerified, CategoryEquipment, "Field Office A")
		})

		DescribeTable("filters",
			func(filter func() Filter, expected func() []int64) {
				items, total, err := repo.ListReceipts(ctx, filter(), database.Page{Number: 1, Size: 25})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(items)).To(Equal(expected()))
				Expect(total).To(Equal(len(expected())))
			},
			Entry("no filter returns newest first",
				func() Filter { return Filter{} },
				func() []int64 { return []int64{tools, lumber, fuel} }),
			Entry("search is case-insensitive across vendor",
				func() Filter { return Filter{Search: "acme"} },
				func() []int64 { return []int64{fuel} }),
			Entry("search matches location",
				func() Filter { return Filter{Search: "site"} },
				func() []int64 { return []int64{lumber} }),
			Entry("search matches category",
				func() Filter { return Filter{Search: "equip"} },
				func() []int64 { return []int64{tools} }),
			Entry("status",
				func() Filter { return Filter{Status: "Verified"} },
				func() []int64 { return []int64{tools, fuel} }),
			Entry("category",
				func() Filter { return Filter{Category: "Materials"} },
				func() []int64 { return []int64{lumber} }),
			Entry("inclusive date range",
				func() Filter { return Filter{DateFrom: "2025-03-01", DateTo: "2025-03-15"} },
				func() []int64 { return []int64{tools, fuel} }),
			Entry("inclusive amount range",
				func() Filter { return Filter{MinAmount: dec("40"), MaxAmount: dec("125.50")} },
				func() []int64 { return []int64{lumber, fuel} }),
			Entry("filters are combined",
				func() Filter { return Filter{Status: "Verified", Search: "field", MinAmount: dec("200")} },
				func() []int64 { return []int64{tools} }),
		)

		It("matches percent and underscore in a search literally", func() {
			sale := seed("50% Off Supply", "5.00", "2025-03-02", StatusVerified, CategoryOther, "Yard")
			seed("500 Hardware", "6.00", "2025-03-02", StatusVerified, CategoryOther, "Yard")
			under := seed("Site_9 Depot", "7.00", "2025-03-02", StatusVerified, CategoryOther, "Yard")

			items, total, err := repo.ListReceipts(ctx, Filter{Search: "50%"}, database.Page{Number: 1, Size: 25})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(items)).To(Equal([]int64{sale}))
			Expect(total).To(Equal(1))

			items, _, err = repo.ListReceipts(ctx, Filter{Search: "e_9"}, database.Page{Number: 1, Size: 25})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(items)).To(Equal([]int64{under}))
		})

		It("pages results while keeping the total", func() {
			items, total, err := repo.ListReceipts(ctx, Filter{}, database.Page{Number: 2, Size: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(items)).To(Equal([]int64{fuel}))
			Expect(total).To(Equal(3))
		})

		It("returns no items but the true total beyond the last page", func() {
			items, total, err := repo.ListReceipts(ctx, Filter{}, database.Page{Number: 10, Size: 25})
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(BeEmpty())
			Expect(total).To(Equal(3))
		})

		It("answers an enormous page number with an empty page and the true total", func() {
			items, total, err := repo.ListReceipts(ctx, Filter{}, database.NewPage("99999999999999999", "100"))
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(BeEmpty())
			Expect(total).To(Equal(3))
		})
	})

	Describe("AllReceipts", func() {
		It("returns the same rows as an unpaged listing", func() {
			for i := 0; i < 30; i++ {
				seed("Vendor "+strconv.Itoa(i), strconv.Itoa(i*10), "2025-03-01", StatusVerified, CategoryOther, "Yard")
			}
			filter := Filter{MinAmount: dec("50"), Search: "vendor"}

			all, err := repo.AllReceipts(ctx, filter)
			Expect(err).NotTo(HaveOccurred())

			var paged []*Receipt
			for n := 1; ; n++ {
				items, total, err := repo.ListReceipts(ctx, filter, database.Page{Number: n, Size: 10})
				Expect(err).NotTo(HaveOccurred())
				Expect(total).To(Equal(len(all)))
				if len(items) == 0 {
					break
				}
				paged = append(paged, items...)
			}
			Expect(ids(paged)).To(Equal(ids(all)))
			Expect(all).To(HaveLen(25))
		})
	})

	Describe("DeleteReceipt", func() {
		It("removes the row", func() {
			id := seed("Acme", "1", "2025-03-01", StatusVerified, CategoryOther, "Yard")
			Expect(repo.DeleteReceipt(ctx, id)).To(Succeed())
			_, err := repo.GetReceipt(ctx, id)
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("returns ErrNotFound for a missing id", func() {
			Expect(repo.DeleteReceipt(ctx, 12345)).To(MatchError(ErrNotFound))
		})
	})

	Describe("Service export over SQLite", func() {
		It("produces CSV that parses back to the stored values", func() {
			seed(`Quote "Inc", LLC`, "12.34", "2025-01-02", StatusPending, CategoryLabor, "Line1\nLine2")
			svc := NewService(repo, nil, zap.NewNop())

			var buf bytes.Buffer
			Expect(svc.ExportCSV(ctx, &buf, Filter{})).To(Succeed())

			records, err := csv.NewReader(&buf).ReadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[0]).To(Equal(ExportHeader))
			Expect(records[1][1]).To(Equal(`Quote "Inc", LLC`))
			Expect(records[1][2]).To(Equal("12.34"))
			Expect(records[1][5]).To(Equal("Pending"))
			Expect(records[1][7]).To(Equal("Line1\nLine2"))
			Expect(records[1][9]).To(Equal("2025-03-01T09:30:00.000Z"))
		})
	})
})
