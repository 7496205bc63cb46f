package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Sequence allocates human-readable ids such as ISS001 or MACH012.
type Sequence struct {
	Prefix string
	Width  int
}

var (
	IssueSequence   = Sequence{Prefix: "ISS", Width: 3}
	MachineSequence = Sequence{Prefix: "MACH", Width: 3}
)

// maxIDAttempts bounds retries when a concurrent writer wins the same id.
const maxIDAttempts = 5

func (s Sequence) Format(n int) string {
	return fmt.Sprintf("%s%0*d", s.Prefix, s.Width, n)
}

// Next returns the id after the highest numbered id in existing.
// Ids without the prefix or with a non-numeric suffix are ignored.
func (s Sequence) Next(existing []string) string {
	return s.Format(s.highest(existing) + 1)
}

func (s Sequence) highest(existing []string) int {
	top := 0
	for _, id := range existing {
		rest, ok := strings.CutPrefix(id, s.Prefix)
		if !ok || rest == "" {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 || strings.ContainsAny(rest, "+-") {
			continue
		}
		if n > top {
			top = n
		}
	}
	return top
}

// Allocate computes the next id then re-checks existence, stepping forward until free.
func (s Sequence) Allocate(ctx context.Context, existing []string, exists func(context.Context, string) (bool, error)) (string, error) {
	n := s.highest(existing) + 1
	for {
		id := s.Format(n)
		taken, err := exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
		n++
	}
}
