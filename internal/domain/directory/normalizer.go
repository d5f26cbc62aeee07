package directory

import (
	"log/slog"
	"sort"
)

// Mode selects how the normalizer treats change keys outside the vocabulary.
type Mode int

const (
	// ModeStrict rejects unknown keys with UnknownFieldError.
	ModeStrict Mode = iota
	// ModePermissive copies unknown keys into the payload verbatim.
	ModePermissive
)

func (m Mode) String() string {
	if m == ModePermissive {
		return "permissive"
	}
	return "strict"
}

// Normalizer builds upsert payloads from human-named changes.
type Normalizer struct {
	mode         Mode
	personEntity string
	typeTag      string
	logger       *slog.Logger
}

// NewNormalizer returns a normalizer for the given mode.
func NewNormalizer(mode Mode, cfg Config, logger *slog.Logger) *Normalizer {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		mode:         mode,
		personEntity: cfg.PersonEntity,
		typeTag:      cfg.TypeTag,
		logger:       logger,
	}
}

// Mode reports the normalizer's mode.
func (n *Normalizer) Mode() Mode { return n.mode }

// Normalize merges changes over the current required-field snapshot and
// returns the upsert payload for key.
//
// For every required field the explicit change wins, then the snapshot; if
// neither has a value the call fails before anything is built. Relationship
// fields become link references, with nil, blank strings and the field's
// sentinel all pointing at the sentinel; a non-scalar link value fails with
// InvalidFieldValueError. Every other vocabulary field is renamed to its
// OData property. The key field itself is stamped from key and never taken
// from changes.
func (n *Normalizer) Normalize(key CanonicalKey, current Snapshot, changes FieldMap) (Payload, error) {
	resolved, unknown := n.canonicalize(changes)

	if len(unknown) > 0 && n.mode == ModeStrict {
		return nil, &UnknownFieldError{Fields: unknown}
	}

	userID, _ := Property(FieldUserID)
	payload := Payload{
		MetadataKey: Metadata{
			URI:  EntityURI(n.personEntity, key),
			Type: n.typeTag,
		},
		userID: string(key),
	}

	for _, f := range fieldTable {
		if !f.Required {
			continue
		}
		value, ok := requiredValue(f.Name, resolved, current)
		if !ok {
			return nil, &MissingRequiredFieldError{Field: f.Name}
		}
		payload[f.Property] = value
	}

	for name, value := range resolved {
		f := fieldsByName[name]
		switch {
		case f.Required, f.Name == FieldUserID:
			continue
		case f.Relationship:
			ref, err := n.link(f, value)
			if err != nil {
				return nil, err
			}
			payload[f.Property] = ref
		default:
			payload[f.Property] = value
		}
	}

	// Unknown keys keep the caller's spelling; a clash with a property
	// already written leaves the vocabulary value in place.
	for _, k := range unknown {
		if _, taken := payload[k]; taken {
			continue
		}
		payload[k] = changes[k]
	}

	n.logger.Debug("payload normalized",
		"key", key,
		"mode", n.mode.String(),
		"properties", len(payload)-1,
		"fingerprint", payload.Fingerprint(),
	)
	return payload, nil
}

// canonicalize upper-cases change keys and splits them into vocabulary
// entries and unknown keys. When several spellings of the same field are
// present the canonical upper-case spelling wins, otherwise the lexically
// first spelling does, so the result never depends on map order.
func (n *Normalizer) canonicalize(changes FieldMap) (map[string]any, []string) {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	resolved := make(map[string]any, len(changes))
	exact := make(map[string]bool, len(changes))
	var unknown []string
	for _, k := range keys {
		name := CanonicalName(k)
		if _, ok := fieldsByName[name]; !ok {
			unknown = append(unknown, k)
			continue
		}
		isExact := k == name
		if _, seen := resolved[name]; seen && (exact[name] || !isExact) {
			continue
		}
		resolved[name] = changes[k]
		exact[name] = isExact
	}
	return resolved, unknown
}

// link builds the link reference for a relationship field value.
func (n *Normalizer) link(f Field, value any) (LinkReference, error) {
	target, err := LinkTarget(f, value)
	if err != nil {
		return LinkReference{}, err
	}
	return LinkReference{Metadata: Metadata{URI: EntityURI(n.personEntity, CanonicalKey(target))}}, nil
}

// requiredValue picks the explicit change, then the snapshot. Nil and empty
// strings count as absent.
func requiredValue(name string, resolved map[string]any, current Snapshot) (any, bool) {
	if v, ok := resolved[name]; ok && !isBlank(v) {
		return v, true
	}
	if v := current.Get(name); v != "" {
		return v, true
	}
	return nil, false
}

func isBlank(v any) bool {
	s, isString := v.(string)
	return v == nil || (isString && s == "")
}
