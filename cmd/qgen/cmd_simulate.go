// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/katalvlaran/qgen/formula"
	"github.com/katalvlaran/qgen/simulate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type simulateReport struct {
	Files       []string `json:"files" yaml:"files"`
	Causal      []int    `json:"causal_markers,omitempty" yaml:"causal_markers,omitempty"`
	VarGenetic  float64  `json:"var_genetic,omitempty" yaml:"var_genetic,omitempty"`
	VarResidual float64  `json:"var_residual,omitempty" yaml:"var_residual,omitempty"`
}

type simulateFlags struct {
	n, m, causal int
	h2, missing  float64
	seed         int64
	dir          string

	founders, generations, family int
	trialGenotypes, blocks        int
}

func (a *app) simulateCmd() *cobra.Command {
	var f simulateFlags
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write simulated genotypes, phenotypes, a pedigree and a field trial",
		Long: "Write genotypes.csv and phenotypes.csv (n individuals, m markers, causal\n" +
			"markers explaining h2), plus pedigree.csv with --founders and trial.csv with\n" +
			"--trial-genotypes. Output is reproducible for a given --seed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(f.dir, 0o755); err != nil {
				return err
			}
			rep := simulateReport{}
			if f.n > 0 {
				if err := a.simulatePopulation(f, &rep); err != nil {
					return err
				}
			}
			if f.founders > 0 {
				path := filepath.Join(f.dir, "pedigree.csv")
				if err := simulatePedigree(f, path); err != nil {
					return err
				}
				rep.Files = append(rep.Files, path)
			}
			if f.trialGenotypes > 0 {
				path := filepath.Join(f.dir, "trial.csv")
				if err := simulateTrial(f, path); err != nil {
					return err
				}
				rep.Files = append(rep.Files, path)
			}
			a.logger.Info("simulation written", zap.Strings("files", rep.Files))

			return a.emit(rep)
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&f.n, "n", 50, "individuals (0: no genotypes)")
	fl.IntVar(&f.m, "m", 100, "markers")
	fl.IntVar(&f.causal, "causal", 5, "causal markers")
	fl.Float64Var(&f.h2, "h2", 0.5, "heritability of the simulated trait")
	fl.Float64Var(&f.missing, "missing", 0, "rate of blanked genotype calls")
	fl.Int64Var(&f.seed, "seed", 1, "random seed")
	fl.StringVar(&f.dir, "out-dir", ".", "output directory")
	fl.IntVar(&f.founders, "founders", 0, "pedigree founders (0: no pedigree)")
	fl.IntVar(&f.generations, "generations", 3, "pedigree generations after the founders")
	fl.IntVar(&f.family, "family-size", 2, "full sibs per pedigree family")
	fl.IntVar(&f.trialGenotypes, "trial-genotypes", 0, "entries of an RCBD trial (0: no trial)")
	fl.IntVar(&f.blocks, "blocks", 3, "complete blocks of the trial")

	return cmd
}

func (a *app) simulatePopulation(f simulateFlags, rep *simulateReport) error {
	if !(f.missing >= 0 && f.missing < 1) {
		return fmt.Errorf("--missing %g outside [0,1)", f.missing)
	}
	pop, err := simulate.Genotypes(f.n, f.m,
		simulate.WithSeed(f.seed),
		simulate.WithPloidy(a.cfg.Ploidy),
		simulate.WithMissingRate(f.missing),
	)
	if err != nil {
		return err
	}
	ph, err := pop.Phenotypes(f.causal, f.h2, simulate.WithSeed(f.seed+1))
	if err != nil {
		return err
	}

	header := make([]string, f.m+1)
	header[0] = "id"
	for j := 1; j <= f.m; j++ {
		header[j] = fmt.Sprintf("M%04d", j)
	}
	grows := make([][]string, f.n)
	prows := make([][]string, f.n)
	for i, calls := range pop.Dosages {
		id := fmt.Sprintf("I%03d", i+1)
		grows[i] = make([]string, 0, f.m+1)
		grows[i] = append(grows[i], id)
		for _, v := range calls {
			grows[i] = append(grows[i], formatValue(v))
		}
		prows[i] = []string{id, formatValue(ph.Y[i]), formatValue(ph.TrueBV[i])}
	}

	gpath := filepath.Join(f.dir, "genotypes.csv")
	if err = writeCSV(gpath, header, grows); err != nil {
		return err
	}
	ppath := filepath.Join(f.dir, "phenotypes.csv")
	if err = writeCSV(ppath, []string{"id", "y", "true_bv"}, prows); err != nil {
		return err
	}
	rep.Files = append(rep.Files, gpath, ppath)
	rep.Causal = ph.Causal
	rep.VarGenetic, rep.VarResidual = ph.VarGenetic, ph.VarResidual

	return nil
}

func simulatePedigree(f simulateFlags, path string) error {
	recs, err := simulate.Pedigree(f.founders, f.generations, f.family, simulate.WithSeed(f.seed+2))
	if err != nil {
		return err
	}
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = []string{r.ID, orNA(r.Sire), orNA(r.Dam)}
	}

	return writeCSV(path, []string{"id", "sire", "dam"}, rows)
}

func simulateTrial(f simulateFlags, path string) error {
	tr, err := simulate.RCBD(f.trialGenotypes, f.blocks, simulate.WithSeed(f.seed+3))
	if err != nil {
		return err
	}

	return writeTable(path, tr.Table)
}

// writeTable writes every column of t in insertion order.
func writeTable(path string, t *formula.Table) error {
	names := t.Names()
	rows := make([][]string, t.Len())
	for i := range rows {
		rows[i] = make([]string, len(names))
	}
	for j, name := range names {
		c, _ := t.Column(name)
		for i := range rows {
			if c.Kind == formula.Categorical {
				rows[i][j] = orNA(c.Labels[i])
			} else {
				rows[i][j] = formatValue(c.Values[i])
			}
		}
	}

	return writeCSV(path, names, rows)
}

func orNA(s string) string {
	if s == "" {
		return "NA"
	}

	return s
}
