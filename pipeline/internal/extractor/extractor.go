// Package extractor turns event payloads into subject-predicate-object facts
// and derives the content fingerprint used as the dedup key.
package extractor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
)

// RootSubject names the top-level entity of every payload.
const RootSubject = "$"

// ErrEmptyPayload is returned for payloads with no content.
var ErrEmptyPayload = errors.New("payload is empty")

// Extractor produces a GraphView for a decoded payload.
type Extractor interface {
	Extract(ctx context.Context, payload []byte) (models.GraphView, error)
}

// Triple is one fact. Object holds either a canonical literal or, when Ref
// is set, the subject of a nested entity.
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	Ref       bool   `json:"ref,omitempty"`
}

func (t Triple) key() string {
	kind := "lit"
	if t.Ref {
		kind = "ref"
	}
	return t.Subject + "\x1f" + t.Predicate + "\x1f" + kind + "\x1f" + t.Object
}

// FactExtractor flattens JSON payloads. Objects and arrays become entities;
// scalar members become literal facts. Payloads that are not JSON are
// treated as one opaque literal on the root entity.
type FactExtractor struct{}

// New returns a FactExtractor.
func New() *FactExtractor {
	return &FactExtractor{}
}

// Extract implements Extractor.
func (e *FactExtractor) Extract(ctx context.Context, payload []byte) (models.GraphView, error) {
	if err := ctx.Err(); err != nil {
		return models.GraphView{}, err
	}
	facts, err := e.Facts(payload)
	if err != nil {
		return models.GraphView{}, err
	}
	return View(facts), nil
}

// Facts returns the sorted fact set for payload.
func (e *FactExtractor) Facts(payload []byte) ([]Triple, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, ErrEmptyPayload
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil || dec.More() {
		return []Triple{{Subject: RootSubject, Predicate: "raw", Object: string(trimmed)}}, nil
	}

	var facts []Triple
	walk(RootSubject, doc, &facts)
	if len(facts) == 0 {
		// Empty object/array or a bare scalar still needs a fingerprint.
		facts = append(facts, Triple{Subject: RootSubject, Predicate: "value", Object: literal(doc)})
	}
	sort.Slice(facts, func(i, j int) bool { return facts[i].key() < facts[j].key() })
	return facts, nil
}

func walk(subject string, v any, facts *[]Triple) {
	switch node := v.(type) {
	case map[string]any:
		for name, child := range node {
			emit(subject, name, subject+"."+name, child, facts)
		}
	case []any:
		for i, child := range node {
			idx := strconv.Itoa(i)
			emit(subject, idx, subject+"["+idx+"]", child, facts)
		}
	}
}

func emit(subject, predicate, childSubject string, child any, facts *[]Triple) {
	switch child.(type) {
	case map[string]any, []any:
		*facts = append(*facts, Triple{Subject: subject, Predicate: predicate, Object: childSubject, Ref: true})
		walk(childSubject, child, facts)
	default:
		*facts = append(*facts, Triple{Subject: subject, Predicate: predicate, Object: literal(child)})
	}
}

func literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(val)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case map[string]any:
		return "{}"
	case []any:
		return "[]"
	default:
		return fmt.Sprint(val)
	}
}

// View computes the GraphView for a sorted fact set. Nodes are the distinct
// entities plus distinct literal values; every fact is one edge.
func View(facts []Triple) models.GraphView {
	nodes := make(map[string]struct{})
	h := sha256.New()
	for _, f := range facts {
		nodes["e:"+f.Subject] = struct{}{}
		if f.Ref {
			nodes["e:"+f.Object] = struct{}{}
		} else {
			nodes["l:"+f.Object] = struct{}{}
		}
		h.Write([]byte(f.key()))
		h.Write([]byte{'\n'})
	}
	return models.GraphView{
		SnapshotHash: hex.EncodeToString(h.Sum(nil)),
		NodeCount:    len(nodes),
		EdgeCount:    len(facts),
	}
}

// PayloadHash returns the hex SHA-256 of payload.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// HashString is PayloadHash for strings.
func HashString(s string) string {
	return PayloadHash([]byte(s))
}
