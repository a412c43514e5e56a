// Package store keeps the history of transfers, so completed episodes are
// not downloaded twice.
package store

import (
	"errors"

	"github.com/simulot/aspiradl/pkg/models"
)

var ErrorNotFound = errors.New("ressource not found")

type Store interface {
	HistoryInterface
	Close() error
}

type HistoryInterface interface {
	// Record saves the terminal result of a transfer
	Record(r models.TransferResult) error
	// Get returns the history entry of the spec's target
	Get(spec models.TransferSpec) (Entry, error)
	// IsComplete tells if the target has been downloaded and is still there
	IsComplete(spec models.TransferSpec) bool
	// List returns all entries, most recent first
	List() ([]Entry, error)
}
