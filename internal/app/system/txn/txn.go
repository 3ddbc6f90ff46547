// internal/app/system/txn/txn.go

// Package txn runs multi-document writes in a Mongo transaction when the
// server supports them (replica set / mongos), falling back to sequential
// writes on standalone servers so local development still works.
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// WithTransaction executes fn inside a transaction when possible.
//
// On servers without transaction support (standalone Mongo, some hosted
// tiers), fn runs once against the plain context instead. Callers must
// therefore write fn so each individual operation is safe on its own:
// guarded updates that check state in the same filter that mutates it.
func WithTransaction(ctx context.Context, client *mongo.Client, log *zap.Logger, fn func(ctx context.Context) error) error {
	session, err := client.StartSession()
	if err != nil {
		if IsNotSupported(err) {
			log.Debug("mongo sessions unavailable; applying writes sequentially")
			return fn(ctx)
		}
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		log.Debug("mongo transactions unavailable; applying writes sequentially")
		return fn(ctx)
	}
	return err
}

// Server error codes that indicate transactions are not available.
const (
	codeIllegalOperation      = 20
	codeCommandNotSupported   = 51
	codeOperationNotSupported = 263
)

// IsNotSupported reports whether err indicates the server cannot run
// transactions, as opposed to a transaction that legitimately failed.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case codeIllegalOperation, codeCommandNotSupported, codeOperationNotSupported:
			return true
		}
	}

	// Fallback: message sniffing for drivers/servers that don't surface
	// a CommandError. Requires two corroborating keywords so ordinary
	// transaction aborts are not misclassified.
	msg := strings.ToLower(err.Error())
	pairs := [][2]string{
		{"transaction", "replica set"},
		{"transaction", "session"},
		{"session", "not supported"},
		{"illegal operation", "transaction"},
	}
	for _, p := range pairs {
		if strings.Contains(msg, p[0]) && strings.Contains(msg, p[1]) {
			return true
		}
	}
	return false
}
