package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrOrderRejected = errors.New("order rejected")
	ErrSigningFailed = errors.New("signing failed")
	ErrLockHeld      = errors.New("lock already held")
	ErrRiskLimit     = errors.New("risk limit exceeded")
	ErrDuplicate     = errors.New("duplicate execution suppressed")

	// ErrUnreconciledExposure marks an execution whose buy leg was placed
	// but whose sell leg failed, leaving a naked position on one venue.
	ErrUnreconciledExposure = errors.New("unreconciled single-leg exposure")
)

// FetchError is a failed market fetch from one venue. The venue is skipped
// for the current cycle.
type FetchError struct {
	Platform Platform
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s markets: %v", e.Platform, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MalformedRecordError describes a venue record that could not be
// normalized. The record is dropped and the rest of the batch kept.
type MalformedRecordError struct {
	Platform Platform
	RecordID string
	Reason   string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s record %q: %s", e.Platform, e.RecordID, e.Reason)
}

// PersistenceError wraps a failed store operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ExecutionLegError is a failed order placement for one leg.
type ExecutionLegError struct {
	OpportunityID string
	Side          OrderSide
	Platform      Platform
	MarketID      string
	Err           error
}

func (e *ExecutionLegError) Error() string {
	return fmt.Sprintf("opportunity %s: %s leg on %s market %s: %v",
		e.OpportunityID, e.Side, e.Platform, e.MarketID, e.Err)
}

func (e *ExecutionLegError) Unwrap() error { return e.Err }

// UnreconciledExposureError is returned when the buy leg is live on one
// venue and the sell leg failed on the other. No compensating order is
// sent; the placed leg needs manual attention.
type UnreconciledExposureError struct {
	Buy  ExecutionLeg
	Sell *ExecutionLegError
}

func (e *UnreconciledExposureError) Error() string {
	return fmt.Sprintf("%s: bought %s %s at %s (order %s): %v",
		ErrUnreconciledExposure, e.Buy.Platform, e.Buy.MarketID,
		e.Buy.Price.String(), e.Buy.OrderID, e.Sell)
}

func (e *UnreconciledExposureError) Is(target error) bool {
	return target == ErrUnreconciledExposure
}

func (e *UnreconciledExposureError) Unwrap() error { return e.Sell }
