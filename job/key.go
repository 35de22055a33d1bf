package job

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ncobase/placesearch/geo"
)

// LocationPrecision is the number of decimals kept when hashing a location.
const LocationPrecision = 3

// KeyInput identifies one logical request.
type KeyInput struct {
	SessionID string
	Query     string
	Mode      string
	Location  *geo.Point
	Filters   any
	// Page is the requested result page; values below 1 mean the first.
	Page int
}

// NormalizeQuery lowercases, trims and collapses whitespace.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// IdempotencyKey returns the stable fingerprint of in.
func IdempotencyKey(in KeyInput) (string, error) {
	filters, err := Canonical(in.Filters)
	if err != nil {
		return "", fmt.Errorf("canonicalize filters: %w", err)
	}

	loc := "-"
	if in.Location != nil {
		loc = in.Location.Key(LocationPrecision)
	}

	page := strconv.Itoa(max(in.Page, 1))

	h := sha256.New()
	for _, part := range []string{"v1", in.SessionID, NormalizeQuery(in.Query), strings.ToLower(in.Mode), loc, page} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(filters)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Canonical serializes v as JSON with sorted object keys and every array
// sorted by the canonical form of its elements. Empty values collapse to null.
func Canonical(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	norm, err := canonicalize(generic)
	if err != nil {
		return nil, err
	}
	if norm == nil {
		return []byte("null"), nil
	}
	return json.Marshal(norm)
}

func canonicalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			c, err := canonicalize(val)
			if err != nil {
				return nil, err
			}
			if c == nil {
				continue
			}
			out[k] = c
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	case []any:
		if len(t) == 0 {
			return nil, nil
		}
		type pair struct {
			key string
			val any
		}
		items := make([]pair, 0, len(t))
		for _, e := range t {
			c, err := canonicalize(e)
			if err != nil {
				return nil, err
			}
			b, err := json.Marshal(c)
			if err != nil {
				return nil, err
			}
			items = append(items, pair{key: string(b), val: c})
		}
		sort.Slice(items, func(i, j int) bool { return items[i].key < items[j].key })
		out := make([]any, len(items))
		for i, p := range items {
			out[i] = p.val
		}
		return out, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		if s == "" {
			return nil, nil
		}
		return s, nil
	default:
		return t, nil
	}
}
