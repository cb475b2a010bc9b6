package cmodel

import (
	"errors"
	"fmt"
	"os"

	"bitbucket.org/Davydov/excodon/bio"
	"bitbucket.org/Davydov/excodon/codon"
	"bitbucket.org/Davydov/excodon/tree"
)

// Data stores the alignment, the tree and the codon frequencies for a
// codon model.
type Data struct {
	// cSeqs is the codon alignment.
	cSeqs codon.Sequences
	// Tree is the phylogenetic tree.
	Tree *tree.Tree
	// cFreq is codon frequencies.
	cFreq codon.Frequency
}

// NewData creates a new Data from an alignment and a tree file.
func NewData(gCodeID int, alignmentFileName string, treeFileName string,
	cFreq string) (*Data, error) {
	gcode, ok := bio.GeneticCodes[gCodeID]
	if !ok {
		return nil, fmt.Errorf("couldn't load genetic code with id=%d", gCodeID)
	}
	log.Infof("Genetic code: %d, \"%s\"", gcode.ID, gcode.Name)

	fastaFile, err := os.Open(alignmentFileName)
	if err != nil {
		return nil, err
	}
	defer fastaFile.Close()

	ali, err := bio.ParseFasta(fastaFile)
	if err != nil {
		return nil, err
	}

	treeFile, err := os.Open(treeFileName)
	if err != nil {
		return nil, err
	}
	defer treeFile.Close()

	t, err := tree.ParseNewick(treeFile)
	if err != nil {
		return nil, err
	}

	return MakeData(gcode, ali, t, cFreq)
}

// MakeData creates a new Data from parsed sequences and a tree.
func MakeData(gcode *bio.GeneticCode, ali bio.Sequences, t *tree.Tree,
	cFreq string) (*Data, error) {
	data := &Data{Tree: t}

	var err error
	data.cSeqs, err = codon.ToCodonSequences(ali, gcode)
	if err != nil {
		return nil, err
	}

	if data.cSeqs.Length() == 0 {
		return nil, errors.New("zero length alignment")
	}
	log.Infof("Read alignment of %d codons, %d fixed positions, %d ambiguous positions",
		data.cSeqs.Length(), data.cSeqs.NFixed(), data.cSeqs.NAmbiguous())

	if t.NLeaves() != len(data.cSeqs) {
		return nil, fmt.Errorf("tree has %d leaves, alignment has %d sequences",
			t.NLeaves(), len(data.cSeqs))
	}

	switch cFreq {
	case "F0":
		log.Info("F0 frequency")
		data.cFreq = codon.F0(data.cSeqs)
	case "F3X4":
		log.Info("F3X4 frequency")
		data.cFreq = codon.F3X4(data.cSeqs)
	default:
		return nil, fmt.Errorf("unknown codon frequency specification <%s>", cFreq)
	}

	return data, nil
}

// SetCodonFreqFromFile sets codon frequencies from a file.
func (data *Data) SetCodonFreqFromFile(filename string) error {
	cFreqFile, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer cFreqFile.Close()
	data.cFreq, err = codon.ReadFrequency(cFreqFile, data.cFreq.GCode)
	return err
}

// NSites returns the number of codon sites in the alignment.
func (data *Data) NSites() int {
	return data.cSeqs.Length()
}

// NSeqs returns the number of sequences in the alignment.
func (data *Data) NSeqs() int {
	return len(data.cSeqs)
}

// GCode returns the genetic code of the alignment.
func (data *Data) GCode() *bio.GeneticCode {
	return data.cFreq.GCode
}

// Copy creates a copy; only the tree is copied deeply.
func (data *Data) Copy() *Data {
	return &Data{
		cSeqs: data.cSeqs,
		Tree:  data.Tree.Copy(),
		cFreq: data.cFreq,
	}
}

// Site returns a single-position view of the data. The tree is shared
// with the original, so sub-processes over individual sites see the
// same branch lengths and topology.
func (data *Data) Site(pos int) *Data {
	return &Data{
		cSeqs: data.cSeqs.Site(pos),
		Tree:  data.Tree,
		cFreq: data.cFreq,
	}
}

// WithTree returns a view of the data using a different tree.
func (data *Data) WithTree(t *tree.Tree) *Data {
	return &Data{
		cSeqs: data.cSeqs,
		Tree:  t,
		cFreq: data.cFreq,
	}
}
