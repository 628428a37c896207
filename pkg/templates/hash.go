package templates

import (
	"fmt"

	"github.com/corona10/goimagehash"
)

// Duplicate names two templates whose perceptual hashes are identical
type Duplicate struct {
	First  string
	Second string
}

// Duplicates reports template pairs that hash to the same perceptual value.
// The list is informational; callers decide whether to prune anything.
func Duplicates(templates []Template) ([]Duplicate, error) {
	hashes := make([]*goimagehash.ImageHash, len(templates))
	for i, t := range templates {
		hash, err := goimagehash.PerceptionHash(t.Image)
		if err != nil {
			return nil, fmt.Errorf("failed to hash template %s: %w", t.Name, err)
		}
		hashes[i] = hash
	}

	var dups []Duplicate
	for i := 0; i < len(hashes); i++ {
		for j := i + 1; j < len(hashes); j++ {
			dist, err := hashes[i].Distance(hashes[j])
			if err != nil {
				return nil, err
			}
			if dist == 0 {
				dups = append(dups, Duplicate{First: templates[i].Name, Second: templates[j].Name})
			}
		}
	}
	return dups, nil
}
