package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/katalvlaran/qgen/config"
	"github.com/katalvlaran/qgen/cv"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// run executes one qgen invocation and returns its standard output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func mustRun(t *testing.T, v any, args ...string) {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

// simulated writes a small data set and returns its directory.
func simulated(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	var rep simulateReport
	mustRun(t, &rep, "simulate",
		"--n", "40", "--m", "60", "--causal", "4", "--h2", "0.6", "--seed", "3",
		"--founders", "4", "--generations", "2", "--family-size", "2",
		"--trial-genotypes", "6", "--blocks", "3",
		"--out-dir", dir,
	)
	require.Len(t, rep.Files, 4)
	require.Len(t, rep.Causal, 4)

	return dir
}

func TestGenomicCommands(t *testing.T) {
	t.Parallel()
	dir := simulated(t)
	geno := filepath.Join(dir, "genotypes.csv")
	pheno := filepath.Join(dir, "phenotypes.csv")

	t.Run("grm", func(t *testing.T) {
		var rep grmReport
		mustRun(t, &rep, "grm", "--genotypes", geno, "--no-matrix")
		require.Len(t, rep.IDs, 40)
		require.Equal(t, 60, rep.NMarkers)
		require.Nil(t, rep.Matrix)
		require.InDelta(t, 1, rep.MeanDiagonal, 0.25)

		out, err := run(t, "grm", "--genotypes", geno, "--method", "yang", "-o", "yaml")
		require.NoError(t, err)
		var full grmReport
		require.NoError(t, yaml.Unmarshal([]byte(out), &full))
		require.Equal(t, "yang", string(full.Method))
		require.Len(t, full.Matrix, 40)
	})

	t.Run("rrblup", func(t *testing.T) {
		var rep rrblupReport
		mustRun(t, &rep, "rrblup", "--genotypes", geno, "--phenotypes", pheno, "--trait", "y")
		require.Equal(t, "y", rep.Trait)
		require.Len(t, rep.Markers, 60)
		require.Len(t, rep.GEBV, 40)
		require.Equal(t, "M0001", rep.Markers[0].Marker)
	})

	t.Run("gblup", func(t *testing.T) {
		var rep gblupReport
		mustRun(t, &rep, "gblup", "--genotypes", geno, "--phenotypes", pheno, "--h2", "0.5", "--selected", "0.1")
		require.Len(t, rep.Individuals, 40)
		require.InDelta(t, 0.5, rep.Heritability, 1e-12)
		require.Nil(t, rep.REML)
		require.NotNil(t, rep.Response)
		require.InDelta(t, 1.755, rep.Response.Intensity, 1e-3)
	})

	t.Run("cv is reproducible", func(t *testing.T) {
		args := []string{"cv", "--genotypes", geno, "--phenotypes", pheno, "--folds", "4", "--h2", "0.5", "--seed", "7"}
		first, err := run(t, args...)
		require.NoError(t, err)
		second, err := run(t, append(args, "--workers", "1")...)
		require.NoError(t, err)
		require.Equal(t, first, second)

		var s cv.Summary
		require.NoError(t, json.Unmarshal([]byte(first), &s))
		require.Len(t, s.Accuracies, 4)
		require.Equal(t, 60, s.NMarkers)
		require.LessOrEqual(t, s.CILower, s.CIUpper)
	})
}

func TestPedigreeCommands(t *testing.T) {
	t.Parallel()
	dir := simulated(t)
	ped := filepath.Join(dir, "pedigree.csv")

	var rep amatrixReport
	mustRun(t, &rep, "amatrix", "--pedigree", ped, "--inverse")
	require.Len(t, rep.IDs, 20)
	require.Equal(t, 3, rep.Stats.NGenerations)
	require.Equal(t, 4, rep.Stats.NFounders)
	require.Len(t, rep.Matrix, 20)
	require.Len(t, rep.Inverse, 20)

	recs, err := readPedigree(ped)
	require.NoError(t, err)
	var b strings.Builder
	b.WriteString("id,weight\n")
	for i, r := range recs {
		fmt.Fprintf(&b, "%s,%d\n", r.ID, 10+i%5)
	}
	pheno := filepath.Join(dir, "pedigree_phenotypes.csv")
	require.NoError(t, os.WriteFile(pheno, []byte(b.String()), 0o600))

	var s cv.Summary
	mustRun(t, &s, "cv", "--pedigree", ped, "--phenotypes", pheno, "--folds", "2", "--h2", "0.3")
	require.Equal(t, cv.GBLUP, s.Method)
	require.Zero(t, s.NMarkers)
	require.Len(t, s.Accuracies, 2)

	var fit fitReport
	mustRun(t, &fit, "fit", "--data", pheno, "--formula", "weight ~ (1|id)", "--pedigree", ped)
	require.Equal(t, 20, fit.N)
	require.Len(t, fit.Random, 20)
	require.Equal(t, "id[F0-001]", fit.Random[0].Name)

	_, err = run(t, "fit", "--data", pheno, "--formula", "weight ~ (1|id)", "--pedigree", ped, "--pedigree-col", "animal")
	require.Error(t, err)
}

func TestFitCommand(t *testing.T) {
	t.Parallel()
	dir := simulated(t)
	trial := filepath.Join(dir, "trial.csv")
	metricsFile := filepath.Join(dir, "metrics.prom")

	var byFormula fitReport
	mustRun(t, &byFormula, "fit", "--data", trial, "--formula", "yield ~ genotype + (1|block)",
		"--metrics-file", metricsFile)
	require.Equal(t, 18, byFormula.N)
	require.Len(t, byFormula.Fixed, 6)
	require.Len(t, byFormula.Random, 3)
	require.Equal(t, "Intercept", byFormula.Fixed[0].Name)
	require.Equal(t, "block[B1]", byFormula.Random[0].Name)

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	require.Contains(t, string(prom), "qgen_reml_fits_total")

	var byDesign fitReport
	mustRun(t, &byDesign, "fit", "--data", trial, "--design", "rcbd", "--trait", "yield")
	require.Equal(t, byFormula.Fixed, byDesign.Fixed)
	require.Equal(t, byFormula.Random, byDesign.Random)
}

func TestConfigFile(t *testing.T) {
	t.Parallel()
	dir := simulated(t)
	cfg := filepath.Join(dir, "qgen.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("cv:\n  folds: 3\n  repeats: 2\ngs:\n  heritability: 0.5\n"), 0o600))
	args := []string{"cv", "--config", cfg,
		"--genotypes", filepath.Join(dir, "genotypes.csv"),
		"--phenotypes", filepath.Join(dir, "phenotypes.csv"),
	}

	var s cv.Summary
	mustRun(t, &s, args...)
	require.Equal(t, 3, s.Folds)
	require.Equal(t, 2, s.Repeats)

	mustRun(t, &s, append(args, "--folds", "2")...)
	require.Equal(t, 2, s.Folds)
	require.Len(t, s.Accuracies, 4)
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()
	dir := simulated(t)
	trial := filepath.Join(dir, "trial.csv")
	geno := filepath.Join(dir, "genotypes.csv")
	pheno := filepath.Join(dir, "phenotypes.csv")

	cases := []struct {
		name string
		args []string
		want error
	}{
		{"output format", []string{"grm", "--genotypes", geno, "-o", "xml"}, nil},
		{"backend", []string{"grm", "--genotypes", geno, "--backend", "cuda"}, config.ErrInvalidConfig},
		{"folds", []string{"cv", "--genotypes", geno, "--phenotypes", pheno, "--folds", "1"}, config.ErrInvalidConfig},
		{"missing flag", []string{"grm"}, nil},
		{"unknown design", []string{"fit", "--data", trial, "--design", "latin", "--trait", "yield"}, nil},
		{"formula and design", []string{"fit", "--data", trial, "--formula", "yield ~ genotype", "--design", "rcbd"}, nil},
		{"unknown column", []string{"fit", "--data", trial, "--formula", "yield ~ variety"}, nil},
		{"unknown trait", []string{"rrblup", "--genotypes", geno, "--phenotypes", pheno, "--trait", "height"}, nil},
		{"missing file", []string{"grm", "--genotypes", filepath.Join(dir, "none.csv")}, os.ErrNotExist},
		{"selected", []string{"gblup", "--genotypes", geno, "--phenotypes", pheno, "--h2", "0.5", "--selected", "1.5"}, nil},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := run(t, tc.args...)
			require.Error(t, err)
			if tc.want != nil {
				require.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestReadTable(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "d.csv")
	body := "# field trial\nplot,line,rep,yield\n1,A,1,5.5\n2,B,1,NA\n3,A,2,6.1\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	tab, err := readTable(path, []string{"rep"})
	require.NoError(t, err)
	require.Equal(t, 3, tab.Len())
	line, _ := tab.Column("line")
	require.Equal(t, "categorical", line.Kind.String())
	rep, _ := tab.Column("rep")
	require.Equal(t, "categorical", rep.Kind.String())
	yield, _ := tab.Column("yield")
	require.Equal(t, "numeric", yield.Kind.String())
	require.True(t, math.IsNaN(yield.Values[1]))
}
