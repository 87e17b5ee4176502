package purchase

import (
	"fmt"
	"sort"

	"github.com/dreamup/lotto-agent/internal/agent"
	"github.com/dreamup/lotto-agent/internal/numbers"
)

// SelectionType says how the numbers of one game are chosen
type SelectionType string

const (
	SelectionAuto         SelectionType = "auto"
	SelectionSemiAuto     SelectionType = "semi-auto"
	SelectionManual       SelectionType = "manual"
	SelectionManualRandom SelectionType = "manual-random"
	SelectionManualAI     SelectionType = "manual-ai"
	SelectionManualStats  SelectionType = "manual-stats"
)

const (
	// PicksPerGame is how many numbers a full ticket line holds
	PicksPerGame = 6
	// SemiAutoPicks is how many numbers semi-auto selects explicitly
	SemiAutoPicks = 3
)

// Directive configures number selection for one game
type Directive struct {
	Type    SelectionType `json:"type" yaml:"type" mapstructure:"type"`
	Numbers []int         `json:"numbers,omitempty" yaml:"numbers,omitempty" mapstructure:"numbers"`
}

func (d Directive) String() string {
	if len(d.Numbers) == 0 {
		return string(d.Type)
	}
	return fmt.Sprintf("%s%v", d.Type, d.Numbers)
}

// NumberSource is the statistics collaborator used to fill picks
type NumberSource interface {
	Random(count int, exclude []int) []int
	Frequent(count int) []int
	WeightedRecent(count int) []int
}

var _ NumberSource = (*numbers.Generator)(nil)

// Validate checks the directive without touching the UI
func (d Directive) Validate() error {
	seen := make(map[int]bool, len(d.Numbers))
	for _, n := range d.Numbers {
		if n < numbers.MinNumber || n > numbers.MaxNumber {
			return fmt.Errorf("%s: number %d outside [%d,%d]", d.Type, n, numbers.MinNumber, numbers.MaxNumber)
		}
		if seen[n] {
			return fmt.Errorf("%s: number %d repeated", d.Type, n)
		}
		seen[n] = true
	}

	count := len(d.Numbers)
	switch d.Type {
	case SelectionAuto:
		if count != 0 {
			return fmt.Errorf("auto takes no numbers, got %d", count)
		}
	case SelectionSemiAuto:
		if count > SemiAutoPicks {
			return fmt.Errorf("semi-auto takes at most %d numbers, got %d", SemiAutoPicks, count)
		}
	case SelectionManual:
		if count != PicksPerGame {
			return fmt.Errorf("manual needs exactly %d unique numbers, got %d", PicksPerGame, count)
		}
	case SelectionManualRandom, SelectionManualAI, SelectionManualStats:
		if count != 0 && count != PicksPerGame {
			return fmt.Errorf("%s takes 0 or %d numbers, got %d", d.Type, PicksPerGame, count)
		}
	default:
		return fmt.Errorf("unknown selection type %q", d.Type)
	}
	return nil
}

// ValidateDirectives validates every directive up front
func ValidateDirectives(ds []Directive) error {
	for i, d := range ds {
		if err := d.Validate(); err != nil {
			return agent.NewConfigError(fmt.Sprintf("directive %d", i+1), err)
		}
	}
	return nil
}

// DirectiveFor returns the directive of game index i (0-based). The last
// directive repeats past the end of the list; an empty list means auto.
func DirectiveFor(ds []Directive, i int) Directive {
	if len(ds) == 0 {
		return Directive{Type: SelectionAuto}
	}
	if i >= len(ds) {
		return ds[len(ds)-1]
	}
	return ds[i]
}

// Picks returns the numbers to select explicitly. Auto yields none,
// semi-auto three, every manual variant six.
func (d Directive) Picks(src NumberSource) []int {
	given := append([]int(nil), d.Numbers...)
	var out []int
	switch d.Type {
	case SelectionAuto:
		return nil
	case SelectionSemiAuto:
		out = append(given, src.Random(SemiAutoPicks-len(given), given)...)
	case SelectionManual:
		out = given
	case SelectionManualRandom:
		out = given
		if len(out) == 0 {
			out = src.Random(PicksPerGame, nil)
		}
	case SelectionManualAI:
		out = given
		if len(out) == 0 {
			out = src.WeightedRecent(PicksPerGame)
		}
	case SelectionManualStats:
		out = given
		if len(out) == 0 {
			out = src.Frequent(PicksPerGame)
		}
	}
	sort.Ints(out)
	return out
}

// UsesAutoFill reports whether the site's auto selection completes the game
func (d Directive) UsesAutoFill() bool {
	return d.Type == SelectionAuto || d.Type == SelectionSemiAuto
}
