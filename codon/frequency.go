package codon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"bitbucket.org/Davydov/excodon/bio"
)

// normTolerance is the tolerance for frequency normalization. Vectors
// which do not sum to one within the tolerance are renormalized.
const normTolerance = 1e-9

// Frequency is a vector of codon equilibrium frequencies.
type Frequency struct {
	Freq  []float64
	GCode *bio.GeneticCode
}

// ReadFrequency reads codon frequencies from a reader. It should be
// just a list of numbers in a text format (64 values, stop codons are
// skipped). Frequencies are normalized to sum to one.
func ReadFrequency(rd io.Reader, gcode *bio.GeneticCode) (Frequency, error) {
	cf := Frequency{
		Freq:  make([]float64, gcode.NCodon),
		GCode: gcode,
	}

	scanner := bufio.NewScanner(rd)
	scanner.Split(bufio.ScanWords)

	codons := bio.GetCodons()
	i := 0
	for scanner.Scan() {
		codon, ok := <-codons
		if !ok {
			return cf, errors.New("too many frequencies in file")
		}
		f, err := strconv.ParseFloat(scanner.Text(), 64)
		if err != nil {
			return cf, err
		}
		if gcode.IsStopCodon(codon) {
			continue
		}
		if f < 0 {
			return cf, fmt.Errorf("negative frequency for %s", codon)
		}
		cf.Freq[i] = f
		i++
	}
	if i < gcode.NCodon {
		return cf, errors.New("not enough frequencies in file")
	}
	if err := cf.Normalize(); err != nil {
		return cf, err
	}
	return cf, nil
}

// Normalize renormalizes frequencies so they sum to one. Vectors
// already normalized within the tolerance are left untouched.
func (cf Frequency) Normalize() error {
	sum := 0.0
	for _, f := range cf.Freq {
		sum += f
	}
	if sum <= 0 {
		return errors.New("frequencies sum to zero")
	}
	if math.Abs(sum-1) <= normTolerance {
		return nil
	}
	for i := range cf.Freq {
		cf.Freq[i] /= sum
	}
	return nil
}

// Clone returns a deep copy of the frequency vector.
func (cf Frequency) Clone() Frequency {
	newCF := Frequency{
		Freq:  make([]float64, len(cf.Freq)),
		GCode: cf.GCode,
	}
	copy(newCF.Freq, cf.Freq)
	return newCF
}

// F0 returns equal codon frequencies.
func F0(cali Sequences) Frequency {
	gcode := cali[0].GCode
	cf := Frequency{
		Freq:  make([]float64, gcode.NCodon),
		GCode: gcode,
	}
	for i := 0; i < gcode.NCodon; i++ {
		cf.Freq[i] = 1 / float64(gcode.NCodon)
	}
	return cf
}

// F3X4 computes F3X4-style frequencies based on the alignment.
func F3X4(cali Sequences) (cf Frequency) {
	gcode := cali[0].GCode
	poscf := make([][]float64, 3)
	for i := 0; i < 3; i++ {
		poscf[i] = make([]float64, 4)
	}

	for _, cs := range cali {
		for _, codon := range cs.Sequence {
			if codon == NOCODON {
				continue
			}
			cs := gcode.NumCodon[codon]
			poscf[0][rAlphabet[cs[0]]]++
			poscf[1][rAlphabet[cs[1]]]++
			poscf[2][rAlphabet[cs[2]]]++
		}
	}

	cf = Frequency{
		Freq:  make([]float64, gcode.NCodon),
		GCode: gcode,
	}

	sum := float64(0)
	for ci, cs := range gcode.NumCodon {
		cf.Freq[ci] = poscf[0][rAlphabet[cs[0]]] * poscf[1][rAlphabet[cs[1]]] * poscf[2][rAlphabet[cs[2]]]
		sum += cf.Freq[ci]
	}

	for ci := range cf.Freq {
		cf.Freq[ci] /= sum
	}

	return
}

// FromPreferences derives equilibrium codon frequencies from
// preference weights. Weights may be keyed by codon or by one-letter
// amino acid; the resulting vector is normalized to sum to one. An
// error is returned if a codon has no weight or a weight is negative.
func FromPreferences(p map[string]float64, gcode *bio.GeneticCode) (Frequency, error) {
	cf := Frequency{
		Freq:  make([]float64, gcode.NCodon),
		GCode: gcode,
	}
	sum := 0.0
	for i := 0; i < gcode.NCodon; i++ {
		codon := gcode.NumCodon[byte(i)]
		w, ok := p[codon]
		if !ok {
			w, ok = p[string(gcode.Map[codon])]
		}
		if !ok {
			return cf, fmt.Errorf("no preference for codon %s", codon)
		}
		if w < 0 {
			return cf, fmt.Errorf("negative preference for codon %s", codon)
		}
		cf.Freq[i] = w
		sum += w
	}
	if sum <= 0 {
		return cf, errors.New("preferences sum to zero")
	}
	for i := range cf.Freq {
		cf.Freq[i] /= sum
	}
	return cf, nil
}

// String returns a human readable representation of frequencies.
func (cf Frequency) String() (s string) {
	s = "<Frequency: "
	for i, f := range cf.Freq {
		s += fmt.Sprintf(" %v: %v,", cf.GCode.NumCodon[byte(i)], f)
	}
	s = s[:len(s)-1] + ">"
	return
}
