package mixed_test

import (
	"context"
	"fmt"

	"github.com/katalvlaran/qgen/formula"
	"github.com/katalvlaran/qgen/mixed"
)

func ExampleFit() {
	tab := formula.NewTable(12)
	_ = tab.AddNumeric("yield", []float64{10, 12, 11, 14, 15, 16, 9, 8, 10, 13, 12, 14})
	_ = tab.AddCategorical("line", []string{
		"L1", "L1", "L1", "L2", "L2", "L2", "L3", "L3", "L3", "L4", "L4", "L4",
	})

	res, err := mixed.Fit(context.Background(), "yield ~ (1|line)", tab)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("h² = %.3f\n", res.Variance.Heritability)
	for _, name := range res.Design.ZNames {
		u, _ := res.RandomEffect(name)
		fmt.Printf("%s %+.2f\n", name, u)
	}
	// Output:
	// h² = 0.864
	// line[L1] -0.95
	// line[L2] +2.85
	// line[L3] -2.85
	// line[L4] +0.95
}
