// Package id defines TypeID-based identifiers for Escrow records.
//
// Buckets, payout receipts and journal events carry a prefixed, K-sortable
// (UUIDv7-based) ID in the format "prefix_suffix". Payments keep the
// ledger's monotonic integer ID instead.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix is the entity tag in front of the TypeID suffix.
type Prefix string

const (
	PrefixBucket Prefix = "bkt"
	PrefixPayout Prefix = "po"
	PrefixEvent  Prefix = "evt"
)

// ID is a prefixed TypeID. The zero value is the unset ID and stores as
// NULL.
//
//nolint:recvcheck // pointer receivers only where the ID is decoded in place.
type ID struct {
	tid typeid.TypeID
	set bool
}

// BucketID identifies a bucket ("bkt").
type BucketID = ID

// PayoutID identifies a payout receipt ("po").
type PayoutID = ID

// EventID identifies a journal event ("evt").
type EventID = ID

func generate(p Prefix) ID {
	tid, err := typeid.Generate(string(p))
	if err != nil {
		// Prefixes are compile-time constants.
		panic(fmt.Sprintf("id: generate %q: %v", p, err))
	}
	return ID{tid: tid, set: true}
}

func NewBucketID() ID { return generate(PrefixBucket) }
func NewPayoutID() ID { return generate(PrefixPayout) }
func NewEventID() ID  { return generate(PrefixEvent) }

// Parse decodes any escrow ID regardless of prefix.
func Parse(s string) (ID, error) {
	if s == "" {
		return ID{}, fmt.Errorf("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, set: true}, nil
}

func parseAs(s string, want Prefix) (ID, error) {
	v, err := Parse(s)
	if err != nil {
		return ID{}, err
	}
	if got := v.Prefix(); got != want {
		return ID{}, fmt.Errorf("id: %q is a %q id, want %q", s, got, want)
	}
	return v, nil
}

func ParseBucketID(s string) (ID, error) { return parseAs(s, PrefixBucket) }
func ParsePayoutID(s string) (ID, error) { return parseAs(s, PrefixPayout) }
func ParseEventID(s string) (ID, error)  { return parseAs(s, PrefixEvent) }

// String renders "prefix_suffix", or "" for the unset ID.
func (i ID) String() string {
	if !i.set {
		return ""
	}
	return i.tid.String()
}

func (i ID) Prefix() Prefix {
	if !i.set {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

func (i ID) IsNil() bool { return !i.set }

func (i ID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *ID) UnmarshalText(b []byte) error { return i.decode(string(b)) }

// Value stores the unset ID as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.set {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.tid.String(), nil
}

func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		return i.decode("")
	case string:
		return i.decode(v)
	case []byte:
		return i.decode(string(v))
	default:
		return fmt.Errorf("id: cannot scan %T", src)
	}
}

func (i *ID) decode(s string) error {
	if s == "" {
		*i = ID{}
		return nil
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*i = v
	return nil
}
