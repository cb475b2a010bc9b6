// Package codon provides codon sequences, codon frequencies and
// codon substitution rate matrices.
package codon

import (
	"bytes"
	"errors"
	"fmt"

	"bitbucket.org/Davydov/excodon/bio"
)

// rAlphabet is reverse nucleotide alphabet (letter to a number).
var rAlphabet = map[byte]byte{'T': 0, 'C': 1, 'A': 2, 'G': 3}

// NOCODON is a special value for an unknown or ambiguous codon.
const NOCODON = byte(255)

// Sequence is a codon sequence.
type Sequence struct {
	Name     string
	Sequence []byte
	GCode    *bio.GeneticCode
}

// Sequences is a codon alignment.
type Sequences []Sequence

// String returns a codon sequence in FASTA-like format.
func (seq Sequence) String() (s string) {
	var b bytes.Buffer
	for _, c := range seq.Sequence {
		if c == NOCODON {
			b.WriteString("--- ")
		} else {
			b.WriteString(seq.GCode.NumCodon[c] + " ")
		}
	}
	s = ">" + seq.Name + "\n" + bio.Wrap(b.String(), 80)
	return
}

// Length returns the length of the alignment in codons.
func (seqs Sequences) Length() int {
	if len(seqs) == 0 {
		return 0
	}
	return len(seqs[0].Sequence)
}

// String returns sequences in FASTA-like format.
func (seqs Sequences) String() (s string) {
	for _, seq := range seqs {
		s += seq.String()
	}
	return s[:len(s)-1]
}

// NAmbiguous returns the number of positions with at least one
// ambiguous codon.
func (seqs Sequences) NAmbiguous() (count int) {
	for i := 0; i < seqs.Length(); i++ {
		for _, seq := range seqs {
			if seq.Sequence[i] == NOCODON {
				count++
				break
			}
		}
	}
	return
}

// ToCodonSequences converts nucleotide sequences to codon sequences.
// An error is returned if a sequence length is not divisible by three
// or a stop codon is encountered; codons with unknown letters (gaps,
// N) become NOCODON.
func ToCodonSequences(seqs bio.Sequences, gcode *bio.GeneticCode) (cs Sequences, err error) {
	cs = make(Sequences, 0, len(seqs))
	for _, seq := range seqs {
		if len(seq.Sequence)%3 != 0 {
			return nil, fmt.Errorf("sequence <%s> length doesn't divide by 3", seq.Name)
		}
		cseq := Sequence{
			Name:     seq.Name,
			Sequence: make([]byte, 0, len(seq.Sequence)/3),
			GCode:    gcode,
		}
		for i := 0; i < len(seq.Sequence); i += 3 {
			codon := seq.Sequence[i : i+3]
			if gcode.IsStopCodon(codon) {
				return nil, fmt.Errorf("stop codon %s in sequence <%s> at codon %d",
					codon, seq.Name, i/3+1)
			}
			cnum, ok := gcode.CodonNum[codon]
			if !ok {
				cnum = NOCODON
			}
			cseq.Sequence = append(cseq.Sequence, cnum)
		}
		cs = append(cs, cseq)
	}
	if len(cs) == 0 {
		return nil, errors.New("no sequences")
	}
	return
}

// NFixed calculates number of constant positions in the alignment.
func (seqs Sequences) NFixed() (f int) {
	f = seqs.Length()
	for pos := 0; pos < seqs.Length(); pos++ {
		for i := 1; i < len(seqs); i++ {
			if seqs[i].Sequence[pos] != seqs[0].Sequence[pos] {
				f--
				break
			}
		}
	}
	return
}

// Site returns a single-column alignment for the given position.
func (seqs Sequences) Site(pos int) Sequences {
	res := make(Sequences, len(seqs))
	for i, seq := range seqs {
		res[i] = Sequence{
			Name:     seq.Name,
			Sequence: seq.Sequence[pos : pos+1],
			GCode:    seq.GCode,
		}
	}
	return res
}

// Letters returns, for every position, the states observed (found)
// and not observed (absent) in the alignment. If some states are
// absent, an extra aggregated state is appended to found.
func (seqs Sequences) Letters() (found [][]int, absent [][]int) {
	ncodon := seqs[0].GCode.NCodon
	found = make([][]int, seqs.Length())
	absent = make([][]int, seqs.Length())
	for pos := 0; pos < seqs.Length(); pos++ {
		found[pos] = make([]int, 0, ncodon)
		absent[pos] = make([]int, 0, ncodon)
		pf := make(map[int]bool, ncodon)
		for i := 0; i < len(seqs); i++ {
			if seqs[i].Sequence[pos] != NOCODON {
				pf[int(seqs[i].Sequence[pos])] = true
			}
		}
		for l := 0; l < ncodon; l++ {
			if pf[l] {
				found[pos] = append(found[pos], l)
			} else {
				absent[pos] = append(absent[pos], l)
			}
		}

		if len(found[pos]) < ncodon {
			found[pos] = append(found[pos], ncodon)
		}
	}
	return
}
