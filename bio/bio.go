// Package bio provides genetic codes and sequence input/output.
package bio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// alphabet is the nucleotide alphabet in the NCBI codon-table order.
var alphabet = [...]byte{'T', 'C', 'A', 'G'}

// GeneticCode stores a genetic code: the mapping from codons to amino
// acids and the derived codon numbering which excludes stop codons.
type GeneticCode struct {
	// ID is the NCBI genetic code id.
	ID int
	// Name is the full code name.
	Name string
	// ShortName is the short code name.
	ShortName string
	// Map is a map from codons to amino acids ('*' for stop).
	Map map[string]byte
	// NCodon is the number of sense codons.
	NCodon int
	// CodonNum maps codon strings to codon numbers.
	CodonNum map[string]byte
	// NumCodon maps codon numbers to codon strings.
	NumCodon map[byte]string
}

// newGeneticCode creates a GeneticCode from an NCBI-style amino-acid
// string (64 letters, codons in TCAG order, '*' for stop codons).
func newGeneticCode(id int, name, shortName, ncbieaa string) *GeneticCode {
	if len(ncbieaa) != 64 {
		panic("incorrect genetic code string length")
	}
	gc := &GeneticCode{
		ID:        id,
		Name:      name,
		ShortName: shortName,
		Map:       make(map[string]byte, 64),
		CodonNum:  make(map[string]byte, 61),
		NumCodon:  make(map[byte]string, 61),
	}
	i := 0
	n := byte(0)
	for codon := range GetCodons() {
		aa := ncbieaa[i]
		gc.Map[codon] = aa
		if aa != '*' {
			gc.CodonNum[codon] = n
			gc.NumCodon[n] = codon
			n++
		}
		i++
	}
	gc.NCodon = int(n)
	return gc
}

// GeneticCodes is a map from NCBI genetic code ids to the codes.
var GeneticCodes = map[int]*GeneticCode{
	1: newGeneticCode(1, "Standard", "SGC0",
		"FFLLSSSSYY**CC*WLLLLPPPPHHQQRRRRIIIMTTTTNNKKSSRRVVVVAAAADDEEGGGG"),
	2: newGeneticCode(2, "Vertebrate Mitochondrial", "SGC1",
		"FFLLSSSSYY**CCWWLLLLPPPPHHQQRRRRIIMMTTTTNNKKSS**VVVVAAAADDEEGGGG"),
}

// GetCodons returns a channel with all 64 codons in the NCBI
// codon-table order (TTT, TTC, TTA, TTG, TCT, ...).
func GetCodons() <-chan string {
	ch := make(chan string)
	var cn func(string)
	cn = func(prefix string) {
		if len(prefix) == 3 {
			ch <- prefix
		} else {
			for _, l := range alphabet {
				cn(prefix + string(l))
			}
			if len(prefix) == 0 {
				close(ch)
			}
		}
	}
	go cn("")
	return ch
}

// IsStopCodon tests if the string is a stop-codon (DNA alphabet,
// capital letters).
func (gc *GeneticCode) IsStopCodon(codon string) bool {
	return gc.Map[codon] == '*'
}

// Translate translates a nucleotide sequence string into the protein
// string. An error is returned if the sequence length is not divisible
// by three, a non-terminal stop-codon is found or an unknown codon is
// encountered.
func (gc *GeneticCode) Translate(nseq string) (string, error) {
	var buffer bytes.Buffer

	if len(nseq)%3 != 0 {
		return "", errors.New("sequence length doesn't divide by 3")
	}

	// Convert all the letters to uppercase and U->T.
	nseq = strings.Replace(strings.ToUpper(nseq), "U", "T", -1)

	for i := 0; i < len(nseq); i += 3 {
		aa := gc.Map[nseq[i:i+3]]
		if aa == 0 {
			return buffer.String(), errors.New("unknown codon")
		} else if aa == '*' {
			if i+3 >= len(nseq) {
				// it's ok if this is the last codon
				break
			}
			return buffer.String(), errors.New("premature stop codon")
		}
		buffer.WriteByte(aa)
	}
	return buffer.String(), nil
}

// String returns a short description of the genetic code.
func (gc *GeneticCode) String() string {
	return fmt.Sprintf("<GeneticCode: ID=%d, Name=%q, NCodon=%d>",
		gc.ID, gc.Name, gc.NCodon)
}

// Sequence is a type which is intended for storing nucleotide or
// protein sequence with it's name.
type Sequence struct {
	Name     string
	Sequence string
}

// Sequences stores multiple sequences. E.g. a sequence alignment.
type Sequences []Sequence

// ParseFasta parses FASTA sequences from a reader.
func ParseFasta(rd io.Reader) (seqs Sequences, err error) {
	seqs = make(Sequences, 0, 10)
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] == '>' {
			seq := Sequence{Name: strings.TrimSpace(line[1:])}
			seqs = append(seqs, seq)
		} else {
			if len(seqs) == 0 {
				return nil, errors.New("sequence w/o prefix")
			}
			line = strings.ToUpper(strings.Replace(line, " ", "", -1))
			seqs[len(seqs)-1].Sequence += line
		}
	}
	return seqs, scanner.Err()
}

// Wrap inputs a string and wraps it so string length is n characters
// or less.
func Wrap(seq string, n int) (s string) {
	for i := 0; i < len(seq); i += n {
		end := i + n
		if end > len(seq) {
			end = len(seq)
		}
		s += seq[i:end] + "\n"
	}
	return
}

// String returns a sequence in FASTA format.
func (seq Sequence) String() (s string) {
	s = ">" + seq.Name + "\n" + Wrap(seq.Sequence, 80)
	return
}

// String returns sequences in FASTA format.
func (seqs Sequences) String() (s string) {
	for _, seq := range seqs {
		s += seq.String()
	}
	return s[:len(s)-1]
}
