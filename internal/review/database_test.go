package review

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.etcd.io/bbolt"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	rawRecord := func(bucket, id string) map[string]any {
		var rec map[string]any
		err := db.db.View(func(tx *bbolt.Tx) error {
			return json.Unmarshal(tx.Bucket([]byte(bucket)).Get([]byte(id)), &rec)
		})
		Expect(err).NotTo(HaveOccurred())
		return rec
	}

	Describe("CreateReceipt", func() {
		var (
			receipt *Receipt
			err     error
		)

		BeforeEach(func() {
			receipt = testReceipt("rcpt-a", "", "25.99", "reviewer-x")
		})

		JustBeforeEach(func() {
			err = db.CreateReceipt(receipt)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should start at version 1", func() {
			Expect(receipt.Version).To(Equal(int64(1)))
		})

		It("should round-trip the receipt", func() {
			saved, getErr := db.GetReceipt("rcpt-a")
			Expect(getErr).NotTo(HaveOccurred())
			Expect(saved.ItemizedExpenses).To(HaveLen(1))
			Expect(saved.ItemizedExpenses[0].Amount.Equal(dec("25.99"))).To(BeTrue())
			Expect(saved.AuditedBy).To(Equal([]string{"reviewer-x"}))
			Expect(saved.Date.Equal(receipt.Date)).To(BeTrue())
		})

		It("should store itemized expenses as a JSON string", func() {
			rec := rawRecord(receiptBucketName, "rcpt-a")
			Expect(rec["itemized_expenses"]).To(BeAssignableToTypeOf(""))
			Expect(rec["audited_by"]).To(Equal([]any{"reviewer-x"}))
		})

		When("the receipt already exists", func() {
			It("returns an error", func() {
				Expect(db.CreateReceipt(testReceipt("rcpt-a", "", "1.00"))).To(MatchError(ContainSubstring("receipt already exists")))
			})
		})
	})

	Describe("GetReceipt", func() {
		When("receipt does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetReceipt("nonexistent")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("UpdateReceipt", func() {
		BeforeEach(func() {
			Expect(db.CreateReceipt(testReceipt("rcpt-a", "", "1.00"))).To(Succeed())
		})

		It("should advance the version", func() {
			r, err := db.GetReceipt("rcpt-a")
			Expect(err).NotTo(HaveOccurred())
			r.AuditedBy = append(r.AuditedBy, "reviewer-x")
			Expect(db.UpdateReceipt(r)).To(Succeed())
			Expect(r.Version).To(Equal(int64(2)))

			saved, err := db.GetReceipt("rcpt-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.AuditedBy).To(Equal([]string{"reviewer-x"}))
		})

		It("rejects a stale version", func() {
			first, _ := db.GetReceipt("rcpt-a")
			second, _ := db.GetReceipt("rcpt-a")
			Expect(db.UpdateReceipt(first)).To(Succeed())

			err := db.UpdateReceipt(second)
			Expect(err).To(MatchError(ErrConcurrencyConflict))
			Expect(second.Version).To(Equal(int64(1)))
		})

		It("returns ErrNotFound for a missing receipt", func() {
			Expect(db.UpdateReceipt(&Receipt{ID: "missing", Version: 1})).To(MatchError(ErrNotFound))
		})
	})

	Describe("CreateRequest", func() {
		var req *ReimbursementRequest

		BeforeEach(func() {
			req = testRequest("req-1", StatusSubmitted, "rcpt-a", "rcpt-b")
			req.AuditNotes = []AuditNote{{Note: "hello", AuditorID: "reviewer-x"}}
			Expect(db.CreateRequest(req)).To(Succeed())
		})

		It("should round-trip the request", func() {
			saved, err := db.GetRequest("req-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.ReceiptIDs).To(Equal([]string{"rcpt-a", "rcpt-b"}))
			Expect(saved.AuditNotes).To(HaveLen(1))
			Expect(saved.AuditLogs).To(BeEmpty())
			Expect(saved.TotalAmount.Equal(dec("10.00"))).To(BeTrue())
			Expect(saved.Version).To(Equal(int64(1)))
		})

		It("should store array fields as JSON strings", func() {
			rec := rawRecord(reimbursementBucketName, "req-1")
			Expect(rec["receipts"]).To(Equal(`["rcpt-a","rcpt-b"]`))
			Expect(rec["audit_logs"]).To(Equal("[]"))
			Expect(rec["audit_notes"]).To(ContainSubstring(`"note":"hello"`))
		})

		It("refuses a duplicate id", func() {
			Expect(db.CreateRequest(testRequest("req-1", StatusSubmitted))).To(MatchError(ContainSubstring("reimbursement already exists")))
		})
	})

	Describe("UpdateRequest", func() {
		BeforeEach(func() {
			Expect(db.CreateRequest(testRequest("req-1", StatusSubmitted))).To(Succeed())
		})

		It("rejects a stale version", func() {
			first, _ := db.GetRequest("req-1")
			second, _ := db.GetRequest("req-1")
			first.Status = StatusUnderReview
			Expect(db.UpdateRequest(first)).To(Succeed())

			second.Status = StatusRejected
			Expect(db.UpdateRequest(second)).To(MatchError(ErrConcurrencyConflict))

			saved, _ := db.GetRequest("req-1")
			Expect(saved.Status).To(Equal(StatusUnderReview))
			Expect(saved.Version).To(Equal(int64(2)))
		})
	})

	Describe("ListRequests", func() {
		When("no requests exist", func() {
			It("should return an empty list", func() {
				reqs, err := db.ListRequests()
				Expect(err).NotTo(HaveOccurred())
				Expect(reqs).To(BeEmpty())
			})
		})

		When("requests exist", func() {
			It("should return all requests", func() {
				Expect(db.CreateRequest(testRequest("req-1", StatusSubmitted))).To(Succeed())
				Expect(db.CreateRequest(testRequest("req-2", StatusPaid))).To(Succeed())
				reqs, err := db.ListRequests()
				Expect(err).NotTo(HaveOccurred())
				Expect(reqs).To(HaveLen(2))
			})
		})
	})

	Describe("Close", func() {
		It("should not return an error", func() {
			err := db.Close()
			Expect(err).NotTo(HaveOccurred())
			db = nil
		})
	})

	Describe("with the service", func() {
		var service *Service

		BeforeEach(func() {
			timeSrc := &mockTimeSource{now: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)}
			service = NewServiceWithDeps(db, ContextUserProvider{}, &mockIDGenerator{ids: []string{"unused"}}, timeSrc, 20)
			Expect(db.CreateRequest(testRequest("req-1", StatusUnderReview))).To(Succeed())
		})

		It("loses no notes from concurrent reviewers", func() {
			const writers = 8
			var wg sync.WaitGroup
			errs := make([]error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					ctx := WithActor(context.Background(), fmt.Sprintf("reviewer-%d", i))
					_, errs[i] = service.AddAuditNote(ctx, "req-1", fmt.Sprintf("note %d", i), i%2 == 0)
				}(i)
			}
			wg.Wait()

			for _, err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}
			saved, err := db.GetRequest("req-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.AuditNotes).To(HaveLen(writers))
			Expect(saved.AuditLogs).To(HaveLen(writers))
		})
	})
})
