package bucketing

import (
	"abtrust/domain/experiment"
	"abtrust/internal/errors"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MaxCheckSubjects caps the synthetic population of a uniformity or orthogonality check
const MaxCheckSubjects = 1_000_000

// ValidateCheck rejects populations outside [1, MaxCheckSubjects] and alpha outside (0,1)
func ValidateCheck(subjects int, alpha float64) error {
	if subjects <= 0 || subjects > MaxCheckSubjects {
		return errors.InvalidParameter("subjects must be in [1, %d], got %d", MaxCheckSubjects, subjects)
	}
	if !(alpha > 0 && alpha < 1) {
		return errors.InvalidParameter("alpha %v must be in (0,1)", alpha)
	}
	return nil
}

// UniformityReport compares observed variant shares with the configured split
type UniformityReport struct {
	Subjects         int                            `json:"subjects"`
	Counts           map[experiment.Variant]int     `json:"counts"`
	Shares           map[experiment.Variant]float64 `json:"shares"`
	ChiSquare        float64                        `json:"chi_square"`
	DegreesOfFreedom int                            `json:"degrees_of_freedom"`
	PValue           float64                        `json:"p_value"`
}

// CheckUniformity runs a chi-square goodness-of-fit test of the assigner's split
func CheckUniformity(subjects []string, a *Assigner) UniformityReport {
	split := a.Split()
	report := UniformityReport{
		Subjects:         len(subjects),
		Counts:           make(map[experiment.Variant]int, len(split)),
		Shares:           make(map[experiment.Variant]float64, len(split)),
		DegreesOfFreedom: len(split) - 1,
		PValue:           1.0,
	}
	if len(subjects) == 0 {
		return report
	}

	for _, id := range subjects {
		report.Counts[a.VariantFor(id)]++
	}

	observed := make([]float64, len(split))
	expected := make([]float64, len(split))
	for i, alloc := range split {
		observed[i] = float64(report.Counts[alloc.Variant])
		expected[i] = float64(len(subjects)) * float64(alloc.Weight) / Buckets
		report.Shares[alloc.Variant] = observed[i] / float64(len(subjects))
	}

	report.ChiSquare = stat.ChiSquare(observed, expected)
	report.PValue = chiSquarePValue(report.ChiSquare, report.DegreesOfFreedom)
	return report
}

// OrthogonalityReport is a chi-square test of independence between two layers' assignments
type OrthogonalityReport struct {
	Subjects         int                  `json:"subjects"`
	FirstLayer       string               `json:"first_layer"`
	SecondLayer      string               `json:"second_layer"`
	RowVariants      []experiment.Variant `json:"row_variants"`
	ColVariants      []experiment.Variant `json:"col_variants"`
	Table            [][]int              `json:"table"`
	ChiSquare        float64              `json:"chi_square"`
	DegreesOfFreedom int                  `json:"degrees_of_freedom"`
	PValue           float64              `json:"p_value"`
	Independent      bool                 `json:"independent"`
}

// CheckOrthogonality builds the joint contingency table of two layers over the same
// subjects and tests it for independence at the given alpha.
func CheckOrthogonality(subjects []string, first, second *Assigner, alpha float64) OrthogonalityReport {
	rows := first.Split().Variants()
	cols := second.Split().Variants()

	report := OrthogonalityReport{
		Subjects:    len(subjects),
		FirstLayer:  first.LayerName(),
		SecondLayer: second.LayerName(),
		RowVariants: rows,
		ColVariants: cols,
		Table:       make([][]int, len(rows)),
		PValue:      1.0,
		Independent: true,
	}
	for i := range report.Table {
		report.Table[i] = make([]int, len(cols))
	}

	rowIdx := indexOf(rows)
	colIdx := indexOf(cols)
	for _, id := range subjects {
		r := rowIdx[first.VariantFor(id)]
		c := colIdx[second.VariantFor(id)]
		report.Table[r][c]++
	}

	report.ChiSquare, report.DegreesOfFreedom = independenceStatistic(report.Table)
	if report.DegreesOfFreedom > 0 {
		report.PValue = chiSquarePValue(report.ChiSquare, report.DegreesOfFreedom)
		report.Independent = report.PValue >= alpha
	}
	return report
}

// independenceStatistic computes Pearson's statistic with expected counts from the margins.
// Empty rows and columns are dropped, matching the degrees of freedom to the occupied table.
func independenceStatistic(table [][]int) (float64, int) {
	if len(table) == 0 {
		return 0, 0
	}

	rowTotals := make([]int, len(table))
	colTotals := make([]int, len(table[0]))
	total := 0
	for i := range table {
		for j := range table[i] {
			rowTotals[i] += table[i][j]
			colTotals[j] += table[i][j]
			total += table[i][j]
		}
	}
	if total == 0 {
		return 0, 0
	}

	var observed, expected []float64
	occupiedRows, occupiedCols := 0, 0
	for _, t := range rowTotals {
		if t > 0 {
			occupiedRows++
		}
	}
	for _, t := range colTotals {
		if t > 0 {
			occupiedCols++
		}
	}

	for i := range table {
		for j := range table[i] {
			e := float64(rowTotals[i]) * float64(colTotals[j]) / float64(total)
			if e > 0 {
				observed = append(observed, float64(table[i][j]))
				expected = append(expected, e)
			}
		}
	}

	df := (occupiedRows - 1) * (occupiedCols - 1)
	if df <= 0 {
		return 0, 0
	}
	return stat.ChiSquare(observed, expected), df
}

func chiSquarePValue(chiSquare float64, degreesOfFreedom int) float64 {
	if degreesOfFreedom <= 0 {
		return 1.0
	}
	chiDist := distuv.ChiSquared{K: float64(degreesOfFreedom)}
	return 1 - chiDist.CDF(chiSquare)
}

func indexOf(variants []experiment.Variant) map[experiment.Variant]int {
	idx := make(map[experiment.Variant]int, len(variants))
	for i, v := range variants {
		idx[v] = i
	}
	return idx
}
