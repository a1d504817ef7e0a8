package cv_test

import (
	"context"
	"fmt"

	"github.com/katalvlaran/qgen/cv"
	"github.com/katalvlaran/qgen/gs"
	"github.com/katalvlaran/qgen/simulate"
)

func ExampleCrossValidate() {
	pop, _ := simulate.Genotypes(60, 100, simulate.WithSeed(4))
	ph, _ := pop.Phenotypes(5, 0.7, simulate.WithSeed(5))

	s, err := cv.CrossValidate(context.Background(), cv.Input{Genotypes: pop.Dosages}, ph.Y,
		cv.WithFolds(5),
		cv.WithRepeats(2),
		cv.WithModel(gs.WithHeritability(0.5)),
	)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(s.Method, len(s.Accuracies), "folds scored")
	fmt.Println(s.CILower <= s.Mean && s.Mean <= s.CIUpper)
	// Output:
	// gblup 10 folds scored
	// true
}

func ExampleAssign() {
	for _, fold := range cv.Assign(7, 3, 1) {
		fmt.Println(len(fold))
	}
	// Output:
	// 3
	// 2
	// 2
}
