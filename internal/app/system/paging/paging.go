// Package paging implements keyset pagination for newest-first feeds.
//
// Feeds sort descending by creation time. An "after" cursor continues
// down the feed toward older entries; a "before" cursor moves back up
// toward newer ones. Look-ahead fetching (limit+1) detects whether a
// further page exists without a count query.
package paging

import (
	"net/http"
	"strconv"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PageSize is the default number of feed entries per page.
const PageSize = 20

// MaxPageSize caps the client-requested limit.
const MaxPageSize = 100

// ParseLimit extracts the "limit" query parameter, clamped to
// [1, MaxPageSize]. Returns PageSize if absent or invalid.
func ParseLimit(r *http.Request) int {
	s := query.Get(r, "limit")
	if s == "" {
		return PageSize
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return PageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// Result holds the output of TrimPage.
type Result struct {
	HasPrev bool
	HasNext bool
}

// TrimPage trims a slice fetched with limit+1 look-ahead. It modifies
// the slice in place and returns pagination indicators.
//
// When paging back toward newer entries (before != ""):
//   - the extra element, if present, is the first (a newer page exists)
//   - HasNext is always true (we came from somewhere)
//
// When paging toward older entries or on the first page:
//   - the extra element, if present, is the last (an older page exists)
//   - HasPrev is true only if after != ""
func TrimPage[T any](rows *[]T, before, after string, pageSize int) Result {
	orig := len(*rows)
	var hasPrev, hasNext bool

	if before != "" {
		if orig > pageSize {
			*rows = (*rows)[1:]
			hasPrev = true
		}
		hasNext = true
	} else {
		if orig > pageSize {
			*rows = (*rows)[:pageSize]
			hasNext = true
		}
		hasPrev = after != ""
	}

	return Result{HasPrev: hasPrev, HasNext: hasNext}
}

// Direction indicates which way the feed is being walked.
type Direction int

const (
	// Older walks down the feed toward older entries. This is the
	// default; entries come back newest first.
	Older Direction = iota
	// Newer walks back up toward newer entries. Results are fetched
	// ascending and must be reversed before display.
	Newer
)

// KeysetConfig holds the result of configuring keyset pagination.
type KeysetConfig struct {
	Direction Direction
	SortOrder int // -1 descending (Older), 1 ascending (Newer)
	Cursor    *wafflemongo.Cursor
}

// ConfigureKeyset determines the walk direction and decodes the cursor.
// A "before" cursor takes precedence over "after".
func ConfigureKeyset(before, after string) KeysetConfig {
	cfg := KeysetConfig{
		Direction: Older,
		SortOrder: -1,
	}

	if before != "" {
		cfg.Direction = Newer
		cfg.SortOrder = 1
		if c, ok := wafflemongo.DecodeCursor(before); ok {
			cfg.Cursor = &c
		}
	} else if after != "" {
		if c, ok := wafflemongo.DecodeCursor(after); ok {
			cfg.Cursor = &c
		}
	}

	return cfg
}

// ApplyToFind configures FindOptions with sort and look-ahead limit.
func (cfg KeysetConfig) ApplyToFind(find *options.FindOptions, sortField string, pageSize int) {
	find.SetSort(bson.D{
		{Key: sortField, Value: cfg.SortOrder},
		{Key: "_id", Value: cfg.SortOrder},
	}).SetLimit(int64(pageSize + 1))
}

// KeysetWindow returns the cursor condition for the query filter, or
// nil when no cursor is set.
func (cfg KeysetConfig) KeysetWindow(sortField string) bson.M {
	if cfg.Cursor == nil {
		return nil
	}
	dir := "lt"
	if cfg.Direction == Newer {
		dir = "gt"
	}
	return wafflemongo.KeysetWindow(sortField, dir, cfg.Cursor.CI, cfg.Cursor.ID)
}

// Reverse reverses a slice in place. Use after fetching with the Newer
// direction to restore newest-first order.
func Reverse[T any](rows []T) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

// BuildCursors creates prev/next cursor strings from the first and last
// elements. keyFn extracts the sort key; idFn extracts the ObjectID.
func BuildCursors[T any](rows []T, keyFn func(T) string, idFn func(T) primitive.ObjectID) (prev, next string) {
	if len(rows) == 0 {
		return "", ""
	}
	first := rows[0]
	last := rows[len(rows)-1]
	prev = wafflemongo.EncodeCursor(keyFn(first), idFn(first))
	next = wafflemongo.EncodeCursor(keyFn(last), idFn(last))
	return prev, next
}
