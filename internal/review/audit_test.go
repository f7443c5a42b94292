package review

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func receiptAudits(req *ReimbursementRequest) []AuditLogEntry {
	var out []AuditLogEntry
	for _, e := range req.AuditLogs {
		if e.Action == ActionReceiptAudit {
			out = append(out, e)
		}
	}
	return out
}

var _ = Describe("Receipt auditing", func() {
	var (
		db      *mockDB
		timeSrc *mockTimeSource
		service *Service
		ctx     context.Context
	)

	BeforeEach(func() {
		db = newMockDB()
		timeSrc = &mockTimeSource{now: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, ContextUserProvider{}, &mockIDGenerator{ids: []string{"unused"}}, timeSrc, DefaultMaxRetries)
		ctx = WithActor(context.Background(), "reviewer-x")

		db.seedReceipt(testReceipt("rcpt-a", "req-1", "4.00"))
		db.seedReceipt(testReceipt("rcpt-b", "req-1", "6.00"))
		db.seedRequest(testRequest("req-1", StatusUnderReview, "rcpt-a", "rcpt-b"))
	})

	Describe("AuditReceipt", func() {
		var (
			receipt *Receipt
			err     error
		)

		JustBeforeEach(func() {
			receipt, err = service.AuditReceipt(ctx, "rcpt-a")
		})

		When("the reviewer has not audited it yet", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should add the reviewer to auditedBy", func() {
				Expect(receipt.AuditedBy).To(Equal([]string{"reviewer-x"}))
				Expect(db.receipt("rcpt-a").AuditedBy).To(Equal([]string{"reviewer-x"}))
			})

			It("should log the audit on the owning request", func() {
				logs := receiptAudits(db.request("req-1"))
				Expect(logs).To(HaveLen(1))
				Expect(logs[0].AuditorID).To(Equal("reviewer-x"))
				Expect(logs[0].ReceiptID).To(Equal("rcpt-a"))
				Expect(logs[0].ReceiptName).To(Equal("Cafe rcpt-a"))
				Expect(*logs[0].ReceiptDate).To(Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
				Expect(logs[0].ReceiptAmount.Equal(dec("5.00"))).To(BeTrue())
				Expect(logs[0].Timestamp).To(Equal(timeSrc.now))
			})
		})

		When("the same reviewer audits twice", func() {
			JustBeforeEach(func() {
				Expect(err).NotTo(HaveOccurred())
				receipt, err = service.AuditReceipt(ctx, "rcpt-a")
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should leave auditedBy unchanged", func() {
				Expect(db.receipt("rcpt-a").AuditedBy).To(Equal([]string{"reviewer-x"}))
			})

			It("should keep exactly one log entry", func() {
				Expect(receiptAudits(db.request("req-1"))).To(HaveLen(1))
			})
		})

		When("a second reviewer audits the same receipt", func() {
			JustBeforeEach(func() {
				Expect(err).NotTo(HaveOccurred())
				receipt, err = service.AuditReceipt(WithActor(context.Background(), "reviewer-y"), "rcpt-a")
			})

			It("should hold both reviewers", func() {
				Expect(receipt.AuditedBy).To(Equal([]string{"reviewer-x", "reviewer-y"}))
			})

			It("should log each audit", func() {
				Expect(receiptAudits(db.request("req-1"))).To(HaveLen(2))
			})
		})

		When("the receipt is not attached to a request", func() {
			BeforeEach(func() {
				db.seedReceipt(testReceipt("rcpt-a", "", "4.00"))
			})

			It("returns a validation error", func() {
				Expect(err).To(MatchError(ErrValidation))
			})

			It("should not record the audit", func() {
				Expect(db.receipt("rcpt-a").AuditedBy).To(BeEmpty())
			})
		})

		When("the receipt does not exist", func() {
			JustBeforeEach(func() {
				receipt, err = service.AuditReceipt(ctx, "missing")
			})

			It("returns ErrNotFound", func() {
				Expect(err).To(MatchError(ErrNotFound))
			})
		})

		When("no user is authenticated", func() {
			BeforeEach(func() {
				ctx = context.Background()
			})

			It("returns ErrUnauthenticated", func() {
				Expect(err).To(MatchError(ErrUnauthenticated))
			})
		})

		When("the receipt write conflicts once", func() {
			BeforeEach(func() {
				db.updateReceiptErrs = []error{ErrConcurrencyConflict}
			})

			It("retries and succeeds", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(db.receipt("rcpt-a").AuditedBy).To(Equal([]string{"reviewer-x"}))
			})
		})

		When("the log write fails", func() {
			var setupErr error

			BeforeEach(func() {
				setupErr = errors.New("store unavailable")
				db.updateRequestErrs = []error{setupErr}
			})

			It("reports which half completed", func() {
				var perr *PartialFailureError
				Expect(errors.As(err, &perr)).To(BeTrue())
				Expect(perr.Completed).To(Equal(StageReceiptAudit))
				Expect(perr.Failed).To(Equal(StageAuditLog))
				Expect(err).To(MatchError(setupErr))
				Expect(err).To(MatchError(ErrPartialFailure))
			})

			It("should keep the audit on the receipt", func() {
				Expect(db.receipt("rcpt-a").AuditedBy).To(Equal([]string{"reviewer-x"}))
				Expect(receiptAudits(db.request("req-1"))).To(BeEmpty())
			})

			It("writes only the missing log entry when called again", func() {
				_, retryErr := service.AuditReceipt(ctx, "rcpt-a")
				Expect(retryErr).NotTo(HaveOccurred())
				Expect(db.receipt("rcpt-a").AuditedBy).To(Equal([]string{"reviewer-x"}))
				Expect(receiptAudits(db.request("req-1"))).To(HaveLen(1))
			})
		})
	})

	Describe("CanApprove", func() {
		It("is false while any receipt lacks the reviewer", func() {
			_, err := service.AuditReceipt(ctx, "rcpt-a")
			Expect(err).NotTo(HaveOccurred())

			ok, err := service.CanApprove(ctx, "req-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("is true once every receipt has the reviewer", func() {
			for _, id := range []string{"rcpt-a", "rcpt-b"} {
				_, err := service.AuditReceipt(ctx, id)
				Expect(err).NotTo(HaveOccurred())
			}

			ok, err := service.CanApprove(ctx, "req-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("is per reviewer", func() {
			for _, id := range []string{"rcpt-a", "rcpt-b"} {
				_, err := service.AuditReceipt(WithActor(context.Background(), "reviewer-y"), id)
				Expect(err).NotTo(HaveOccurred())
			}

			ok, err := service.CanApprove(ctx, "req-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("is vacuously true without receipts", func() {
			db.seedRequest(testRequest("req-empty", StatusUnderReview))
			ok, err := service.CanApprove(ctx, "req-empty")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("requires an authenticated actor", func() {
			_, err := service.CanApprove(context.Background(), "req-1")
			Expect(err).To(MatchError(ErrUnauthenticated))
		})
	})

	Describe("auditing through to approval", func() {
		It("gates approval until every receipt is audited", func() {
			_, err := service.AuditReceipt(ctx, "rcpt-a")
			Expect(err).NotTo(HaveOccurred())

			ok, err := service.CanApprove(ctx, "req-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			_, err = service.Transition(ctx, "req-1", StatusApproved)
			Expect(err).To(MatchError(ErrGatingFailure))

			_, err = service.AuditReceipt(ctx, "rcpt-b")
			Expect(err).NotTo(HaveOccurred())

			ok, err = service.CanApprove(ctx, "req-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			req, err := service.Transition(ctx, "req-1", StatusApproved)
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Status).To(Equal(StatusApproved))

			last := req.AuditLogs[len(req.AuditLogs)-1]
			Expect(last.Action).To(Equal(ActionStatusChange))
			Expect(last.From).To(Equal(StatusUnderReview))
			Expect(last.To).To(Equal(StatusApproved))
			Expect(last.AuditorID).To(Equal("reviewer-x"))

			for i, e := range req.AuditLogs {
				Expect(e.Seq).To(Equal(int64(i + 1)))
			}
		})
	})
})
