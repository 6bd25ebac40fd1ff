// Package mongostore implements store.Store on MongoDB multi-document transactions.
//
// Row locks are emulated with writes: Lock bumps a lock_seq counter on the property
// document and LockAgent upserts a document in agent_locks. Two transactions that take the
// same lock collide on a write conflict, and the loser is aborted and retried from scratch.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"greendrake/realty/internal/db"
	"greendrake/realty/internal/store"
)

// Collection names.
const (
	PropertiesCollection = "properties"
	InquiriesCollection  = "inquiries"
	HistoryCollection    = "inquiry_status_history"
	EventsCollection     = "calendar_events"
	AgentLocksCollection = "agent_locks"
)

// AllCollections lists every collection the store writes to.
var AllCollections = []string{
	PropertiesCollection,
	InquiriesCollection,
	HistoryCollection,
	EventsCollection,
	AgentLocksCollection,
}

// namespaceExistsCode is returned by createCollection when the collection already exists.
const namespaceExistsCode = 48

// Store is a MongoDB-backed store.Store.
type Store struct {
	client     *mongo.Client
	db         *mongo.Database
	maxRetries int
	repos      *repositories
}

// New wraps an already connected client. maxRetries bounds how often a transaction that
// failed transiently is re-run.
func New(client *mongo.Client, database *mongo.Database, maxRetries int) *Store {
	if maxRetries < 0 {
		maxRetries = db.DefaultMaxRetries
	}
	return &Store{
		client:     client,
		db:         database,
		maxRetries: maxRetries,
		repos:      newRepositories(database),
	}
}

// Reader returns repositories bound to no transaction.
func (s *Store) Reader() store.Tx {
	return s.repos
}

// Close disconnects the underlying client.
func (s *Store) Close(_ context.Context) error {
	return db.DisconnectDB(s.client)
}

// RunInTx runs fn inside a snapshot transaction with majority write concern. The whole unit is
// retried on transient failures; business errors returned by fn abort it and are returned as is.
func (s *Store) RunInTx(ctx context.Context, fn store.TxFunc) error {
	attempt := 0
	return db.WithRetries(func() error {
		attempt++
		err := s.runOnce(ctx, fn)
		if err != nil && db.IsRetryableStoreError(err) {
			log.Printf("mongostore: transaction attempt %d failed transiently: %v", attempt, err)
		}
		return err
	}, s.maxRetries, db.IsRetryableStoreError)
}

func (s *Store) runOnce(ctx context.Context, fn store.TxFunc) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(context.Background())

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := sess.StartTransaction(txnOpts); err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	sc := mongo.NewSessionContext(ctx, sess)
	if err := fn(sc, s.repos); err != nil {
		if abortErr := sess.AbortTransaction(context.Background()); abortErr != nil {
			log.Printf("mongostore: abort failed: %v", abortErr)
		}
		return err
	}

	for commitAttempt := 0; ; commitAttempt++ {
		err := sess.CommitTransaction(sc)
		if err == nil {
			return nil
		}
		if db.IsUnknownCommitResult(err) && commitAttempt < s.maxRetries {
			continue
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
}

// EnsureIndexes creates the collections (upserts inside transactions need them to exist) and
// the indexes the repositories query by.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, name := range AllCollections {
		err := s.db.CreateCollection(ctx, name)
		var cmdErr mongo.CommandError
		if err != nil && !(errors.As(err, &cmdErr) && cmdErr.Code == namespaceExistsCode) {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}

	for name, models := range indexModels() {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}
