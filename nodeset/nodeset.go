/*
Package nodeset parses the compact rank-set notation used to address a group of ranks,
e.g. "0-3,7" or "[0-3,7]".
*/
package nodeset

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var ErrEmpty = errors.New("empty rank set")

var ErrOutOfRange = errors.New("rank out of range")

// No upper bound for Parse.
const noLimit = uint64(1) << 32

// A NodeSet is a sorted, duplicate-free list of ranks.
type NodeSet struct {
	ranks []uint32
}

// Parse a rank set. Ranges are inclusive; duplicates are removed and the result is sorted.
func Parse(s string) (*NodeSet, error) {
	return parse(s, noLimit)
}

/*
Like Parse, but every rank must be below size. Range bounds are checked before a range is
expanded, so "0-4294967295" fails at once with ErrOutOfRange.
*/
func ParseMax(s string, size uint32) (*NodeSet, error) {
	return parse(s, uint64(size))
}

func parse(s string, limit uint64) (*NodeSet, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return nil, fmt.Errorf("unbalanced brackets in rank set %q", s)
		}
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if s == "" {
		return nil, ErrEmpty
	}

	seen := make(map[uint32]bool)
	ns := &NodeSet{}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty element in rank set %q", s)
		}

		lo, hi, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		if uint64(hi) >= limit {
			return nil, fmt.Errorf("rank %d (size %d): %w", hi, limit, ErrOutOfRange)
		}
		for r := lo; ; r++ {
			if !seen[r] {
				seen[r] = true
				ns.ranks = append(ns.ranks, r)
			}
			if r == hi {
				break
			}
		}
	}

	sort.Slice(ns.ranks, func(i, j int) bool { return ns.ranks[i] < ns.ranks[j] })
	return ns, nil
}

func parseRange(part string) (uint32, uint32, error) {
	bounds := strings.SplitN(part, "-", 2)

	lo, err := parseRank(bounds[0])
	if err != nil {
		return 0, 0, err
	}
	if len(bounds) == 1 {
		return lo, lo, nil
	}
	hi, err := parseRank(bounds[1])
	if err != nil {
		return 0, 0, err
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("descending range %q", part)
	}
	return lo, hi, nil
}

func parseRank(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	r, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad rank %q", s)
	}
	return uint32(r), nil
}

// New creates a set from explicit ranks.
func New(ranks ...uint32) *NodeSet {
	seen := make(map[uint32]bool)
	ns := &NodeSet{}
	for _, r := range ranks {
		if !seen[r] {
			seen[r] = true
			ns.ranks = append(ns.ranks, r)
		}
	}
	sort.Slice(ns.ranks, func(i, j int) bool { return ns.ranks[i] < ns.ranks[j] })
	return ns
}

func (ns *NodeSet) Count() int {
	return len(ns.ranks)
}

// Largest rank in the set; 0 for an empty set.
func (ns *NodeSet) Max() uint32 {
	if len(ns.ranks) == 0 {
		return 0
	}
	return ns.ranks[len(ns.ranks)-1]
}

// Ranks in ascending order. The slice is a copy.
func (ns *NodeSet) Ranks() []uint32 {
	return append([]uint32(nil), ns.ranks...)
}

func (ns *NodeSet) Contains(rank uint32) bool {
	i := sort.Search(len(ns.ranks), func(i int) bool { return ns.ranks[i] >= rank })
	return i < len(ns.ranks) && ns.ranks[i] == rank
}

// Compact notation, e.g. "0-3,7".
func (ns *NodeSet) String() string {
	var sb strings.Builder

	for i := 0; i < len(ns.ranks); {
		j := i
		for j+1 < len(ns.ranks) && ns.ranks[j+1] == ns.ranks[j]+1 {
			j++
		}
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		if j == i {
			fmt.Fprintf(&sb, "%d", ns.ranks[i])
		} else {
			fmt.Fprintf(&sb, "%d-%d", ns.ranks[i], ns.ranks[j])
		}
		i = j + 1
	}
	return sb.String()
}
