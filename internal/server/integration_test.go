package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/client"
	"github.com/zombor/receipt-capture/internal/receipt"
	"github.com/zombor/receipt-capture/internal/verify"
)

var _ = Describe("Integration", func() {
	var (
		ctx context.Context
		f   *fixture
		api *client.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		f = newFixture(Options{Now: fixedNow}, true)
		api = client.New(f.http.URL(), 0)
	})

	It("extracts, verifies, approves and reports a receipt through the client", func() {
		Expect(api.Health(ctx)).To(Succeed())

		flow := verify.NewFlow(verify.WithFallback(api, fixedNow, zap.NewNop()), nil, api, zap.NewNop(),
			verify.WithClock(fixedNow))
		p := capture.NewPayload([]byte("jpeg"), "image/jpeg", "camera-capture.jpg")
		Expect(flow.Enter(ctx, verify.Start{Payload: &p})).To(Succeed())
		Expect(flow.State()).To(Equal(verify.StateReady))
		Expect(flow.Edit("vendor", `Bob's "Best" Fuel`)).To(Succeed())

		out, err := flow.Approve(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Saved).To(BeTrue())

		list, err := api.ListReceipts(ctx, url.Values{"search": {"best"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(list.Total).To(Equal(1))
		Expect(list.Items[0].ID).To(Equal(out.ReceiptID))
		Expect(list.Items[0].Time).To(Equal("02:05 PM"))

		var buf bytes.Buffer
		Expect(api.ExportReceipts(ctx, url.Values{"status": {"Verified"}}, false, &buf)).To(Succeed())
		records, err := csv.NewReader(&buf).ReadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
		Expect(records[1][1]).To(Equal(`Bob's "Best" Fuel`))
		Expect(records[1][2]).To(Equal("125.5"))

		calls, err := api.ListAICalls(ctx, 1, 25)
		Expect(err).NotTo(HaveOccurred())
		Expect(calls.Total).To(Equal(1))
		Expect(calls.Summary.SuccessCount).To(Equal(1))

		Expect(api.DeleteReceipt(ctx, out.ReceiptID)).To(Succeed())
		Expect(client.IsNotFound(api.DeleteReceipt(ctx, out.ReceiptID))).To(BeTrue())
	})

	It("falls back to manual entry when the server cannot extract", func() {
		f.scanner.fail(errors.New("provider down"))

		flow := verify.NewFlow(verify.WithFallback(api, fixedNow, zap.NewNop()), nil, api, zap.NewNop())
		p := capture.NewPayload([]byte("jpeg"), "image/jpeg", "")
		Expect(flow.Enter(ctx, verify.Start{Payload: &p})).To(Succeed())
		Expect(flow.Result().Vendor).To(Equal("Manual Entry Required"))
		Expect(flow.Result().Category).To(Equal(receipt.CategoryOther))

		calls, err := api.ListAICalls(ctx, 1, 25)
		Expect(err).NotTo(HaveOccurred())
		Expect(calls.Summary.ErrorCount).To(Equal(1))
	})

	It("reports a rejected receipt as a non-blocking warning", func() {
		flow := verify.NewFlow(api, nil, api, zap.NewNop())
		p := capture.NewPayload([]byte("jpeg"), "image/jpeg", "")
		Expect(flow.Enter(ctx, verify.Start{Payload: &p})).To(Succeed())
		Expect(flow.Edit("vendor", "")).To(Succeed())

		out, err := flow.Approve(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Saved).To(BeFalse())
		Expect(out.Warning).To(ContainSubstring("missing required fields: vendor"))
		Expect(flow.State()).To(Equal(verify.StateApproved))

		list, err := api.ListReceipts(ctx, url.Values{})
		Expect(err).NotTo(HaveOccurred())
		Expect(list.Total).To(BeZero())
	})
})
