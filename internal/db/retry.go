package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func() error

// IsRetryable decides whether a failed operation may be attempted again.
type IsRetryable func(err error) bool

const DefaultMaxRetries = 3

// writeConflictCode is the server error code for a write conflict inside a transaction.
const writeConflictCode = 112

// Try executes an operation with DefaultMaxRetries, retrying transient storage failures
// and _id collisions.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsRetryableStoreError)
}

// WithRetries executes op up to maxRetries+1 times. It stops at the first success, at the first
// error that isRetryable rejects, or when attempts run out, returning the last error.
func WithRetries(op Operation, maxRetries int, isRetryable IsRetryable) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries || !isRetryable(err) {
			break
		}
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond) // Simple incremental backoff
	}
	return err
}

// IsRetryableStoreError reports whether a failed atomic unit can be run again from scratch:
// transient transaction/network failures and duplicate _id collisions of freshly generated IDs.
func IsRetryableStoreError(err error) bool {
	return IsTransientError(err) || IsMongoDuplicateKeyError(err)
}

// IsTransientError reports whether err is a storage fault that left no committed state behind
// (connection loss, server timeout, write conflict, or an error labelled TransientTransactionError).
// Cancellation of the caller's context is never transient.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel("TransientTransactionError") {
		return true
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == writeConflictCode {
		return true
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}

// IsUnknownCommitResult reports whether a commit may or may not have been applied and should
// be retried on its own.
func IsUnknownCommitResult(err error) bool {
	var labeled mongo.LabeledError
	return errors.As(err, &labeled) && labeled.HasErrorLabel("UnknownTransactionCommitResult")
}

// IsMongoDuplicateKeyError checks if an error from MongoDB is a duplicate key error (code 11000).
func IsMongoDuplicateKeyError(err error) bool {
	var e mongo.WriteException
	if errors.As(err, &e) {
		for _, we := range e.WriteErrors {
			if we.Code == 11000 {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, writeError := range bwe.WriteErrors {
			if writeError.Code == 11000 {
				return true
			}
		}
	}
	return false
}
