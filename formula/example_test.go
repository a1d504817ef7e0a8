package formula_test

import (
	"fmt"

	"github.com/katalvlaran/qgen/formula"
)

func ExampleCompile() {
	tbl, _ := formula.FromRecords([]map[string]any{
		{"yield": 10.0, "genotype": "G1", "block": "B1"},
		{"yield": 12.0, "genotype": "G2", "block": "B1"},
		{"yield": 11.0, "genotype": "G3", "block": "B1"},
		{"yield": 9.0, "genotype": "G1", "block": "B2"},
		{"yield": 14.0, "genotype": "G2", "block": "B2"},
		{"yield": 13.0, "genotype": "G3", "block": "B2"},
	})
	d, err := formula.Compile("yield ~ genotype + (1|block)", tbl)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(d.XNames)
	fmt.Println(d.ZNames)
	// Output:
	// [Intercept genotype[G2] genotype[G3]]
	// [block[B1] block[B2]]
}
