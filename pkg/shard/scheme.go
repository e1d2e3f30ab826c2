package shard

import (
	"errors"
	"fmt"
)

var ErrInvalidScheme = errors.New("tablectl: invalid shard scheme")

// Range is a contiguous slice of the keyspace. Begin is inclusive, End is
// exclusive. An empty Begin means the start of the keyspace; an empty End
// means the range extends to the end of the keyspace.
type Range struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
}

func (r Range) String() string {
	end := r.End
	if end == "" {
		end = "+inf"
	}
	return fmt.Sprintf("[%q, %q)", r.Begin, end)
}

// Scheme is a fixed, ordered partitioning of the keyspace. N split points
// produce N+1 shards; shard index to range is a pure function of the scheme.
type Scheme struct {
	SplitPoints []string `json:"split_points"`
}

func NewScheme(splitPoints []string) (Scheme, error) {
	s := Scheme{SplitPoints: splitPoints}
	if err := s.Validate(); err != nil {
		return Scheme{}, err
	}
	return s, nil
}

func (s Scheme) Validate() error {
	for i, sp := range s.SplitPoints {
		if sp == "" {
			return fmt.Errorf("%w: empty split point at index %d", ErrInvalidScheme, i)
		}
		if i > 0 && s.SplitPoints[i-1] >= sp {
			return fmt.Errorf("%w: split points not strictly increasing at index %d", ErrInvalidScheme, i)
		}
	}
	return nil
}

func (s Scheme) NumShards() int {
	return len(s.SplitPoints) + 1
}

// RangeOf returns the key range of shard i. i must be in [0, NumShards()).
func (s Scheme) RangeOf(i int) Range {
	if i < 0 || i >= s.NumShards() {
		panic(fmt.Sprintf("shard: range index %d out of [0, %d)", i, s.NumShards()))
	}
	var r Range
	if i > 0 {
		r.Begin = s.SplitPoints[i-1]
	}
	if i < len(s.SplitPoints) {
		r.End = s.SplitPoints[i]
	}
	return r
}

// Ranges returns all shard ranges in order.
func (s Scheme) Ranges() []Range {
	ranges := make([]Range, s.NumShards())
	for i := range ranges {
		ranges[i] = s.RangeOf(i)
	}
	return ranges
}
