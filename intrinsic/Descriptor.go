// Package intrinsic converts control maps into intrinsic rewards and
// combines them with extrinsic rewards
package intrinsic

import (
	"fmt"
	"regexp"
	"strings"
)

// Delimiter separates the fields of a reward type descriptor
const Delimiter = "__"

// Source selects the control map intrinsic rewards are computed from
type Source string

const (
	// Direct uses the direct control map M
	Direct Source = "direct"

	// Latent uses the accumulated latent control map G
	Latent Source = "latent"
)

// Post selects the post-processing applied to a control map
type Post string

const (
	// NoPost leaves the map unchanged
	NoPost Post = "none"

	// Binary thresholds the map at its mean and normalizes the bits by
	// their running frequency
	Binary Post = "binary"
)

// BonusType selects whether a count-based bonus scales the reward
type BonusType string

const (
	// NoBonus applies no count-based bonus
	NoBonus BonusType = "none"

	// HashCountBonus multiplies the reward by a count-based bonus of
	// the map
	HashCountBonus BonusType = "hcb"
)

var reservedPattern = regexp.MustCompile(`^[a-z0-9]+$`)

// Descriptor is a parsed reward type descriptor of the form
//
//	source__post__reserved__bonus
//
// e.g. "direct__none__x__none". The third field is carried but has no
// effect.
type Descriptor struct {
	Source   Source
	Post     Post
	Reserved string
	Bonus    BonusType
}

// ParseDescriptor parses and validates a reward type descriptor
func ParseDescriptor(s string) (Descriptor, error) {
	fields := strings.Split(s, Delimiter)
	if len(fields) != 4 {
		return Descriptor{}, fmt.Errorf("parseDescriptor: invalid number of "+
			"fields in %q \n\twant(4)\n\thave(%v)", s, len(fields))
	}

	d := Descriptor{
		Source:   Source(fields[0]),
		Post:     Post(fields[1]),
		Reserved: fields[2],
		Bonus:    BonusType(fields[3]),
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, fmt.Errorf("parseDescriptor: %q: %v", s, err)
	}
	return d, nil
}

// Validate returns an error if any field of d is unrecognized
func (d Descriptor) Validate() error {
	switch d.Source {
	case Direct, Latent:
	default:
		return fmt.Errorf("unknown source %q \n\twant(%v or %v)", d.Source,
			Direct, Latent)
	}
	switch d.Post {
	case NoPost, Binary:
	default:
		return fmt.Errorf("unknown post-processing %q \n\twant(%v or %v)",
			d.Post, NoPost, Binary)
	}
	if !reservedPattern.MatchString(d.Reserved) {
		return fmt.Errorf("invalid reserved field %q", d.Reserved)
	}
	switch d.Bonus {
	case NoBonus, HashCountBonus:
	default:
		return fmt.Errorf("unknown bonus %q \n\twant(%v or %v)", d.Bonus,
			NoBonus, HashCountBonus)
	}
	return nil
}

// String returns the descriptor in its delimited form
func (d Descriptor) String() string {
	return strings.Join([]string{string(d.Source), string(d.Post),
		d.Reserved, string(d.Bonus)}, Delimiter)
}

// MarshalText implements the encoding.TextMarshaler interface
func (d Descriptor) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface
func (d *Descriptor) UnmarshalText(text []byte) error {
	parsed, err := ParseDescriptor(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
