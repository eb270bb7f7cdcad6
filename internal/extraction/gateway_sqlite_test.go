package extraction

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/zombor/receipt-capture/internal/aicall"
	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/database"
	"github.com/zombor/receipt-capture/internal/scanning"
)

// cancellingScanner cancels the request while the model call is in flight
type cancellingScanner struct {
	cancel context.CancelFunc
}

func (c *cancellingScanner) Scan(ctx context.Context, _ scanning.Document) (*scanning.Result, error) {
	c.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *cancellingScanner) Model() string { return "gpt-4o-mini" }
func (c *cancellingScanner) Close() error  { return nil }

var _ = Describe("Gateway over SQLite", func() {
	var (
		conn  *database.DB
		calls *aicall.Service
	)

	BeforeEach(func() {
		var err error
		conn, err = database.Open(context.Background(), database.Config{
			Driver: database.DriverSQLite,
			DSN:    filepath.Join(GinkgoT().TempDir(), "receipts.db"),
		}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(conn.Close)
		calls = aicall.NewService(aicall.NewSQLDB(conn), zap.NewNop())
	})

	It("logs the attempt when the caller goes away mid-extraction", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		gateway := NewGateway(&cancellingScanner{cancel: cancel}, calls, nil, zap.NewNop())

		_, err := gateway.Extract(ctx, capture.NewPayload([]byte("jpeg"), "image/jpeg", "receipt.jpg"))
		Expect(err).To(MatchError(ErrExtractionFailed))
		Expect(err).To(MatchError(ContainSubstring("context canceled")))

		list, err := calls.List(context.Background(), database.Page{Number: 1, Size: 25})
		Expect(err).NotTo(HaveOccurred())
		Expect(list.Total).To(Equal(1))
		Expect(list.Items[0].Status).To(Equal(aicall.StatusError))
		Expect(list.Items[0].Error).To(ContainSubstring("context canceled"))
		Expect(list.Summary.ErrorCount).To(Equal(1))
	})
})
