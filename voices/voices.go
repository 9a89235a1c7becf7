// Package voices holds the catalogue of speaker profiles a generation
// request may reference.
package voices

import (
    "fmt"
    "sort"
)

// Voice is one selectable speaker profile.
type Voice struct {
    ID     int      `json:"id"`
    Name   string   `json:"name"`
    Ref    string   `json:"-"` // reference sample handed to the engine
    Styles []string `json:"styles"`
}

// Registry is a read-only lookup of known voices. It is populated once at
// startup, so no locking is needed.
type Registry struct {
    byID map[int]Voice
}

func NewRegistry(list []Voice) *Registry {
    byID := make(map[int]Voice, len(list))
    for _, v := range list {
        byID[v.ID] = v
    }
    return &Registry{byID: byID}
}

// Defaults returns the built-in speaker profiles used when no voice
// catalogue is configured.
func Defaults() []Voice {
    return []Voice{
        {ID: 1, Name: "narrator", Ref: "narrator.wav", Styles: []string{"default", "calm"}},
        {ID: 2, Name: "heroine", Ref: "heroine.wav", Styles: []string{"default", "cheerful", "angry"}},
        {ID: 3, Name: "villain", Ref: "villain.wav", Styles: []string{"default", "menacing"}},
    }
}

// Get returns the voice for id.
func (r *Registry) Get(id int) (Voice, error) {
    v, ok := r.byID[id]
    if !ok {
        return Voice{}, fmt.Errorf("unknown speaker id %d", id)
    }
    return v, nil
}

// HasStyle reports whether the voice supports the given style. The empty
// style always matches; engines treat it as "default".
func (v Voice) HasStyle(style string) bool {
    if style == "" {
        return true
    }
    for _, s := range v.Styles {
        if s == style {
            return true
        }
    }
    return false
}

// List returns all voices ordered by id.
func (r *Registry) List() []Voice {
    out := make([]Voice, 0, len(r.byID))
    for _, v := range r.byID {
        out = append(out, v)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out
}
