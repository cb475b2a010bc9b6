package bio

import (
	"strings"
	"testing"
)

func TestGeneticCodes(tst *testing.T) {
	gcode, ok := GeneticCodes[1]
	if !ok {
		tst.Fatal("No standard genetic code")
	}
	if gcode.NCodon != 61 {
		tst.Error("Expected 61 sense codons, got", gcode.NCodon)
	}
	if !gcode.IsStopCodon("TAA") || !gcode.IsStopCodon("TAG") || !gcode.IsStopCodon("TGA") {
		tst.Error("Standard code stop codons not detected")
	}
	if gcode.IsStopCodon("TGG") {
		tst.Error("TGG is not a stop codon")
	}

	mito := GeneticCodes[2]
	if mito.NCodon != 60 {
		tst.Error("Expected 60 sense codons for vertebrate mitochondrial, got", mito.NCodon)
	}
	if !mito.IsStopCodon("AGA") || !mito.IsStopCodon("AGG") {
		tst.Error("AGA and AGG are stop codons in the vertebrate mitochondrial code")
	}
	if mito.IsStopCodon("TGA") {
		tst.Error("TGA codes for tryptophan in the vertebrate mitochondrial code")
	}
	if w, err := mito.Translate("TGA"); err != nil || w != "W" {
		tst.Error("Expected TGA to translate to W, got", w, err)
	}
}

func TestCodonNumbering(tst *testing.T) {
	gcode := GeneticCodes[1]
	if len(gcode.CodonNum) != gcode.NCodon || len(gcode.NumCodon) != gcode.NCodon {
		tst.Error("Codon numbering size mismatch")
	}
	for codon, num := range gcode.CodonNum {
		if gcode.NumCodon[num] != codon {
			tst.Errorf("Codon numbering is not invertible for %s", codon)
		}
	}
}

func TestTranslate(tst *testing.T) {
	gcode := GeneticCodes[1]
	p, err := gcode.Translate("ATGAAAGGGTAA")
	if err != nil {
		tst.Error("Error: ", err)
	}
	if p != "MKG" {
		tst.Error("Expected MKG, got", p)
	}

	_, err = gcode.Translate("ATGTAAGGG")
	if err == nil {
		tst.Error("Expected premature stop codon error")
	}

	_, err = gcode.Translate("ATGA")
	if err == nil {
		tst.Error("Expected length error")
	}
}

func TestParseFasta(tst *testing.T) {
	fasta := ">seq1\nACG TGA\nacgt\n>seq2\nAAAA\n"
	seqs, err := ParseFasta(strings.NewReader(fasta))
	if err != nil {
		tst.Error("Error: ", err)
	}
	if len(seqs) != 2 {
		tst.Fatal("Expected 2 sequences, got", len(seqs))
	}
	if seqs[0].Sequence != "ACGTGAACGT" {
		tst.Error("Unexpected sequence:", seqs[0].Sequence)
	}
	if seqs[1].Name != "seq2" {
		tst.Error("Unexpected name:", seqs[1].Name)
	}
}
