// Package groundtruth reads the historical user-item interaction table.
// The table is the single source of behavioral truth: the sampler restores
// interaction edges from it, and the evaluator scores retrievals against it.
package groundtruth

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrMalformedRow = errors.New("malformed interaction row")

// Pair is one recorded user-item interaction.
type Pair struct {
	UserID string
	ItemID string
}

// Source reads interaction pairs from a CSV file with a userId,itemId
// header. Rows keep file order, which the evaluator relies on when it
// truncates the actual-user list at a cutoff.
type Source struct {
	path string
}

// NewSource wraps an interaction CSV file.
func NewSource(path string) *Source {
	return &Source{path: path}
}

// Path returns the file the source reads from.
func (s *Source) Path() string { return s.path }

// UsersForItem returns the users who interacted with the item, in file
// order. A cold-start item with no history yields an empty slice, not an
// error.
func (s *Source) UsersForItem(itemID string) ([]string, error) {
	var users []string
	err := s.scan(func(p Pair) {
		if p.ItemID == itemID {
			users = append(users, p.UserID)
		}
	})
	return users, err
}

// PairsForItems filters the full dataset down to rows referencing the given
// item ids.
func (s *Source) PairsForItems(itemIDs []string) ([]Pair, error) {
	wanted := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = true
	}
	var pairs []Pair
	err := s.scan(func(p Pair) {
		if wanted[p.ItemID] {
			pairs = append(pairs, p)
		}
	})
	return pairs, err
}

func (s *Source) scan(visit func(Pair)) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open interactions: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	if _, err := r.Read(); err != nil { // header
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("read interactions header: %w", err)
	}
	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedRow, err)
		}
		visit(Pair{UserID: record[0], ItemID: record[1]})
	}
}
