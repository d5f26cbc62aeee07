// Package directory contains the identifier resolver and payload normalizer
// that sit between the MCP tools and the HR directory's OData API.
//
// The package owns the ports it needs (Reader, Writer) so the OData adapter
// depends on the domain and not the other way round.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// CanonicalKey is the directory's authoritative user identifier (userId).
type CanonicalKey string

func (k CanonicalKey) String() string { return string(k) }

// FieldMap maps human field names (any casing) to requested values.
type FieldMap map[string]any

// Snapshot holds the current stored values of the required fields, keyed by
// human name.
type Snapshot map[string]string

// Get returns the value stored under name, ignoring case.
func (s Snapshot) Get(name string) string {
	name = CanonicalName(name)
	if v, ok := s[name]; ok {
		return v
	}
	for k, v := range s {
		if CanonicalName(k) == name {
			return v
		}
	}
	return ""
}

// Metadata is the OData v2 __metadata block.
type Metadata struct {
	URI  string `json:"uri"`
	Type string `json:"type,omitempty"`
}

// LinkReference is the wire shape of a relationship pointing at another entity.
type LinkReference struct {
	Metadata Metadata `json:"__metadata"`
}

// Payload is an upsert body ready for transmission.
type Payload map[string]any

// MetadataKey is the reserved OData property holding the entity pointer.
const MetadataKey = "__metadata"

// Properties returns the payload's property names, excluding __metadata, in
// lexical order.
func (p Payload) Properties() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		if k == MetadataKey {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Fingerprint hashes the payload's canonical JSON encoding. Two payloads with
// the same key/value set always share a fingerprint.
func (p Payload) Fingerprint() uint64 {
	// encoding/json writes map keys in sorted order.
	data, err := json.Marshal(p)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(data)
}

// Query describes a read against an entity set. A non-empty Key makes it a
// point read; otherwise it is a collection read.
type Query struct {
	EntitySet   string
	Key         string
	Filter      string
	Select      []string
	Expand      []string
	InlineCount bool
}

// Entity is a decoded OData entity.
type Entity map[string]any

// String returns the named property as a string. Numbers and booleans are
// formatted; nil and nested objects yield "".
func (e Entity) String(property string) string {
	switch v := e[property].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Nested returns the named property as an entity when it is an expanded
// navigation property. Collections expanded as {"results":[...]} yield their
// first element.
func (e Entity) Nested(property string) (Entity, bool) {
	obj, ok := e[property].(map[string]any)
	if !ok {
		return nil, false
	}
	if results, ok := obj["results"].([]any); ok {
		if len(results) == 0 {
			return nil, false
		}
		first, ok := results[0].(map[string]any)
		return Entity(first), ok
	}
	if _, deferred := obj["__deferred"]; deferred {
		return nil, false
	}
	return Entity(obj), true
}

// Envelope is a decoded read response. Single-entity responses are presented
// as a one-element Results slice so callers handle both shapes the same way.
type Envelope struct {
	Results []Entity
	Count   int
	Single  bool
}

// First returns the first entity, if any.
func (e *Envelope) First() (Entity, bool) {
	if e == nil || len(e.Results) == 0 {
		return nil, false
	}
	return e.Results[0], true
}

// DecodeEnvelope parses {"d":{...}}, {"d":{"results":[...]}} or a bare object.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	body := data
	if d, ok := outer["d"]; ok {
		body = d
	}

	var inner map[string]any
	if err := json.Unmarshal(body, &inner); err != nil {
		return nil, fmt.Errorf("decode envelope body: %w", err)
	}

	rawResults, isCollection := inner["results"].([]any)
	if !isCollection {
		return &Envelope{Results: []Entity{Entity(inner)}, Count: 1, Single: true}, nil
	}

	env := &Envelope{Results: make([]Entity, 0, len(rawResults)), Count: len(rawResults)}
	for _, r := range rawResults {
		if obj, ok := r.(map[string]any); ok {
			env.Results = append(env.Results, Entity(obj))
		}
	}
	if c, ok := inner["__count"].(string); ok {
		if n, err := strconv.Atoi(c); err == nil {
			env.Count = n
		}
	}
	return env, nil
}

// Reader issues reads against the directory.
type Reader interface {
	Read(ctx context.Context, q Query) (*Envelope, error)
}

// Writer issues upserts against the directory and returns the raw response.
type Writer interface {
	Upsert(ctx context.Context, p Payload) (json.RawMessage, error)
}

// Directory is the full port the tool service needs.
type Directory interface {
	Reader
	Writer
}
