package codon

import (
	"math"
	"testing"

	"github.com/gonum/matrix/mat64"

	"bitbucket.org/Davydov/excodon/bio"
)

func TestToCodonSequences(tst *testing.T) {
	gcode := bio.GeneticCodes[1]
	ali := bio.Sequences{
		{Name: "a", Sequence: "ATGAAANNN"},
		{Name: "b", Sequence: "ATGAAGGGG"},
	}
	cs, err := ToCodonSequences(ali, gcode)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if cs.Length() != 3 {
		tst.Error("Expected length 3, got", cs.Length())
	}
	if cs[0].Sequence[2] != NOCODON {
		tst.Error("Expected NOCODON for NNN")
	}
	if cs.NAmbiguous() != 1 {
		tst.Error("Expected 1 ambiguous position, got", cs.NAmbiguous())
	}

	_, err = ToCodonSequences(bio.Sequences{{Name: "a", Sequence: "ATGA"}}, gcode)
	if err == nil {
		tst.Error("Expected error for length not divisible by 3")
	}

	_, err = ToCodonSequences(bio.Sequences{{Name: "a", Sequence: "ATGTAA"}}, gcode)
	if err == nil {
		tst.Error("Expected error for stop codon")
	}
}

func TestFrequencies(tst *testing.T) {
	gcode := bio.GeneticCodes[1]
	ali := bio.Sequences{
		{Name: "a", Sequence: "ATGAAACCC"},
		{Name: "b", Sequence: "ATGAAGGGG"},
	}
	cs, err := ToCodonSequences(ali, gcode)
	if err != nil {
		tst.Fatal("Error: ", err)
	}

	for _, cf := range []Frequency{F0(cs), F3X4(cs)} {
		sum := 0.0
		for _, f := range cf.Freq {
			if f < 0 {
				tst.Error("Negative frequency")
			}
			sum += f
		}
		if math.Abs(sum-1) > 1e-10 {
			tst.Error("Frequencies don't sum to 1:", sum)
		}
	}
}

func TestFromPreferences(tst *testing.T) {
	gcode := bio.GeneticCodes[1]
	p := make(map[string]float64)
	for i := 0; i < gcode.NCodon; i++ {
		aa := string(gcode.Map[gcode.NumCodon[byte(i)]])
		p[aa] = 1
	}
	p["M"] = 10

	cf, err := FromPreferences(p, gcode)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	sum := 0.0
	for _, f := range cf.Freq {
		sum += f
	}
	if math.Abs(sum-1) > 1e-10 {
		tst.Error("Frequencies don't sum to 1:", sum)
	}
	atg := cf.Freq[gcode.CodonNum["ATG"]]
	aaa := cf.Freq[gcode.CodonNum["AAA"]]
	if atg <= aaa {
		tst.Error("Expected preferred amino acid to have larger frequency")
	}

	delete(p, "M")
	_, err = FromPreferences(p, gcode)
	if err == nil {
		tst.Error("Expected error for missing preference")
	}
}

func TestExp(tst *testing.T) {
	gcode := bio.GeneticCodes[1]
	ali := bio.Sequences{
		{Name: "a", Sequence: "ATGAAACCC"},
		{Name: "b", Sequence: "ATGAAGGGG"},
	}
	cs, err := ToCodonSequences(ali, gcode)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	cf := F0(cs)

	e := NewEMatrix(cf)
	Q, s := CreateTransitionMatrix(cf, 2, 0.5, nil)
	e.Set(Q, s)
	if err = e.Eigen(); err != nil {
		tst.Fatal("Error: ", err)
	}

	cD := mat64.NewDense(gcode.NCodon, gcode.NCodon, nil)
	P, err := e.Exp(cD, 0.1)
	if err != nil {
		tst.Fatal("Error: ", err)
	}

	for i := 0; i < gcode.NCodon; i++ {
		sum := 0.0
		for j := 0; j < gcode.NCodon; j++ {
			v := P.At(i, j)
			if v < 0 {
				tst.Error("Negative transition probability")
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			tst.Error("Row doesn't sum to 1:", sum)
		}
	}

	// equilibrium frequencies are preserved
	for j := 0; j < gcode.NCodon; j++ {
		f := 0.0
		for i := 0; i < gcode.NCodon; i++ {
			f += cf.Freq[i] * P.At(i, j)
		}
		if math.Abs(f-cf.Freq[j]) > 1e-6 {
			tst.Error("Stationarity violated at", j)
		}
	}
}

func TestEigenSkewedFrequencies(tst *testing.T) {
	gcode := bio.GeneticCodes[1]
	// frequencies spanning many orders of magnitude, the kind
	// preference-derived models produce
	freq := make([]float64, gcode.NCodon)
	sum := 0.0
	for i := range freq {
		freq[i] = math.Pow(10, -float64(i%8))
		sum += freq[i]
	}
	for i := range freq {
		freq[i] /= sum
	}
	cf := Frequency{Freq: freq, GCode: gcode}

	e := NewEMatrix(cf)
	Q, s := CreateTransitionMatrix(cf, 2, 0.5, nil)
	e.Set(Q, s)
	if err := e.Eigen(); err != nil {
		tst.Fatal("Error: ", err)
	}

	// the decomposition must reconstruct the rate matrix
	rec := mat64.NewDense(gcode.NCodon, gcode.NCodon, nil)
	rec.Mul(e.v, e.d)
	rec.Mul(rec, e.iv)
	for i := 0; i < gcode.NCodon; i++ {
		for j := 0; j < gcode.NCodon; j++ {
			if math.Abs(rec.At(i, j)-Q.At(i, j)) > 1e-8 {
				tst.Fatalf("Q not reconstructed at (%d, %d): %v != %v",
					i, j, rec.At(i, j), Q.At(i, j))
			}
		}
	}

	cD := mat64.NewDense(gcode.NCodon, gcode.NCodon, nil)
	P, err := e.Exp(cD, 1)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for i := 0; i < gcode.NCodon; i++ {
		rowSum := 0.0
		for j := 0; j < gcode.NCodon; j++ {
			rowSum += P.At(i, j)
		}
		if math.Abs(rowSum-1) > 1e-8 {
			tst.Error("Row doesn't sum to 1:", rowSum)
		}
	}
}
