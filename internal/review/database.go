package review

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	receiptBucketName       = "receipts"
	reimbursementBucketName = "reimbursements"
)

// DB defines the interface for the record store. Writes are per document
// and version-checked; there is no transaction spanning documents.
type DB interface {
	// CreateReceipt stores a new receipt at version 1
	CreateReceipt(receipt *Receipt) error

	// GetReceipt retrieves a receipt by ID
	GetReceipt(id string) (*Receipt, error)

	// UpdateReceipt writes receipt if the stored version equals receipt.Version,
	// then advances receipt.Version
	UpdateReceipt(receipt *Receipt) error

	// CreateRequest stores a new reimbursement request at version 1
	CreateRequest(req *ReimbursementRequest) error

	// GetRequest retrieves a reimbursement request by ID
	GetRequest(id string) (*ReimbursementRequest, error)

	// UpdateRequest writes req if the stored version equals req.Version,
	// then advances req.Version
	UpdateRequest(req *ReimbursementRequest) error

	// ListRequests returns all reimbursement requests
	ListRequests() ([]*ReimbursementRequest, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(receiptBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(reimbursementBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// CreateReceipt saves a new receipt
func (b *BoltDB) CreateReceipt(receipt *Receipt) error {
	next := *receipt
	next.Version = 1
	data, err := encodeReceipt(&next)
	if err != nil {
		return err
	}
	err = b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		if bucket.Get([]byte(receipt.ID)) != nil {
			return fmt.Errorf("receipt already exists: %s", receipt.ID)
		}
		return bucket.Put([]byte(receipt.ID), data)
	})
	if err != nil {
		return err
	}
	receipt.Version = next.Version
	return nil
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(id string) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(receiptBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("receipt %s: %w", id, ErrNotFound)
		}
		var err error
		receipt, err = decodeReceipt(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// UpdateReceipt performs a version-checked write of a receipt
func (b *BoltDB) UpdateReceipt(receipt *Receipt) error {
	next := *receipt
	next.Version = receipt.Version + 1
	data, err := encodeReceipt(&next)
	if err != nil {
		return err
	}
	err = b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		current := bucket.Get([]byte(receipt.ID))
		if current == nil {
			return fmt.Errorf("receipt %s: %w", receipt.ID, ErrNotFound)
		}
		stored, err := decodeReceipt(current)
		if err != nil {
			return err
		}
		if stored.Version != receipt.Version {
			return fmt.Errorf("receipt %s at version %d, have %d: %w", receipt.ID, stored.Version, receipt.Version, ErrConcurrencyConflict)
		}
		return bucket.Put([]byte(receipt.ID), data)
	})
	if err != nil {
		return err
	}
	receipt.Version = next.Version
	return nil
}

// CreateRequest saves a new reimbursement request
func (b *BoltDB) CreateRequest(req *ReimbursementRequest) error {
	next := *req
	next.Version = 1
	data, err := encodeRequest(&next)
	if err != nil {
		return err
	}
	err = b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(reimbursementBucketName))
		if bucket.Get([]byte(req.ID)) != nil {
			return fmt.Errorf("reimbursement already exists: %s", req.ID)
		}
		return bucket.Put([]byte(req.ID), data)
	})
	if err != nil {
		return err
	}
	req.Version = next.Version
	return nil
}

// GetRequest retrieves a reimbursement request by ID
func (b *BoltDB) GetRequest(id string) (*ReimbursementRequest, error) {
	var req *ReimbursementRequest
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(reimbursementBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("reimbursement %s: %w", id, ErrNotFound)
		}
		var err error
		req, err = decodeRequest(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// UpdateRequest performs a version-checked write of a reimbursement request
func (b *BoltDB) UpdateRequest(req *ReimbursementRequest) error {
	next := *req
	next.Version = req.Version + 1
	data, err := encodeRequest(&next)
	if err != nil {
		return err
	}
	err = b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(reimbursementBucketName))
		current := bucket.Get([]byte(req.ID))
		if current == nil {
			return fmt.Errorf("reimbursement %s: %w", req.ID, ErrNotFound)
		}
		stored, err := decodeRequest(current)
		if err != nil {
			return err
		}
		if stored.Version != req.Version {
			return fmt.Errorf("reimbursement %s at version %d, have %d: %w", req.ID, stored.Version, req.Version, ErrConcurrencyConflict)
		}
		return bucket.Put([]byte(req.ID), data)
	})
	if err != nil {
		return err
	}
	req.Version = next.Version
	return nil
}

// ListRequests returns all reimbursement requests
func (b *BoltDB) ListRequests() ([]*ReimbursementRequest, error) {
	reqs := make([]*ReimbursementRequest, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(reimbursementBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			req, err := decodeRequest(v)
			if err != nil {
				return err
			}
			reqs = append(reqs, req)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
