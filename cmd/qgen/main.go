// SPDX-License-Identifier: MIT

// Command qgen fits mixed models, builds relationship matrices and runs
// genomic prediction from CSV files.
//
// Usage:
//
//	qgen grm      --genotypes g.csv
//	qgen amatrix  --pedigree p.csv
//	qgen fit      --data d.csv --formula "yield ~ genotype + (1|block)"
//	qgen rrblup   --genotypes g.csv --phenotypes y.csv
//	qgen gblup    --genotypes g.csv --phenotypes y.csv --selected 0.1
//	qgen cv       --genotypes g.csv --phenotypes y.csv --folds 5 --repeats 2
//	qgen simulate --n 50 --m 100 --out-dir data
//
// Settings come from flags, QGEN_* environment variables and an optional
// YAML file given with --config, in that order of priority.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "qgen:", err)
		os.Exit(1)
	}
}
