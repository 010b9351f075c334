package types

import (
	"fmt"
	"strconv"
	"strings"
)

// GradeLevel is an ordinal grade: PreK=-1, K=0, then 1..12.
type GradeLevel int

const (
	GradePreK         GradeLevel = -1
	GradeKindergarten GradeLevel = 0
	GradeTwelve       GradeLevel = 12
)

// IsValid checks if the grade level value is valid
func (g GradeLevel) IsValid() bool {
	return g >= GradePreK && g <= GradeTwelve
}

func (g GradeLevel) String() string {
	switch g {
	case GradePreK:
		return "PK"
	case GradeKindergarten:
		return "K"
	}
	return strconv.Itoa(int(g))
}

// Band maps a grade to its normalized band.
func (g GradeLevel) Band() GradeBand {
	switch {
	case g == GradePreK:
		return BandPreK
	case g >= GradeKindergarten && g <= 2:
		return BandK2
	case g >= 3 && g <= 5:
		return Band35
	case g >= 6 && g <= 8:
		return Band68
	case g >= 9 && g <= GradeTwelve:
		return Band912
	}
	return BandUnknown
}

// ParseGradeLevel understands labels like "K", "Kindergarten", "Pre-K", "Grade 3", "3rd", "HS".
// A range label ("K-2", "3-5") resolves to its lower bound.
func ParseGradeLevel(label string) (GradeLevel, error) {
	s := strings.ToLower(strings.TrimSpace(label))
	if s == "" {
		return 0, fmt.Errorf("grade level is required")
	}
	s = strings.TrimPrefix(s, "grade")
	s = strings.TrimPrefix(s, "gr.")
	s = strings.TrimSpace(s)
	if lo, _, ok := strings.Cut(s, "-"); ok && lo != "pre" {
		if lo != "" {
			s = strings.TrimSpace(lo)
		}
	}

	switch s {
	case "pk", "prek", "pre-k", "pre k", "preschool", "tk":
		return GradePreK, nil
	case "k", "kg", "kindergarten", "kinder":
		return GradeKindergarten, nil
	case "hs", "high school":
		return 9, nil
	}

	s = strings.TrimRight(s, "stndrh") // 1st, 2nd, 3rd, 4th
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unrecognized grade level %q", label)
	}
	g := GradeLevel(n)
	if !g.IsValid() {
		return 0, fmt.Errorf("grade level %q out of range", label)
	}
	return g, nil
}

// GradeBand is the coarse grade grouping used for bucketing and variant rules.
type GradeBand string

const (
	BandPreK    GradeBand = "PK"
	BandK2      GradeBand = "K-2"
	Band35      GradeBand = "3-5"
	Band68      GradeBand = "6-8"
	Band912     GradeBand = "9-12"
	BandUnknown GradeBand = ""
)

// IsValid checks if the grade band value is valid
func (b GradeBand) IsValid() bool {
	switch b {
	case BandPreK, BandK2, Band35, Band68, Band912:
		return true
	}
	return false
}
