package cmodel

import (
	"os"
	"path"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/excodon/bio"
	"bitbucket.org/Davydov/excodon/tree"
)

// log is a global logging variable.
var log = logging.MustGetLogger("cmodel")

// GetTreeAlignment returns data for testing purposes.
func GetTreeAlignment(data string, cFreq string) (*Data, error) {
	// using the standard genetic code
	gcode := bio.GeneticCodes[1]

	tf, err := os.Open(path.Join("testdata", data+".nwk"))
	if err != nil {
		return nil, err
	}
	defer tf.Close()

	t, err := tree.ParseNewick(tf)
	if err != nil {
		return nil, err
	}

	af, err := os.Open(path.Join("testdata", data+".fst"))
	if err != nil {
		return nil, err
	}
	defer af.Close()

	ali, err := bio.ParseFasta(af)
	if err != nil {
		return nil, err
	}

	return MakeData(gcode, ali, t, cFreq)
}

// maxInt returns the maximum integer value.
func maxInt(a int, b ...int) int {
	for _, v := range b {
		if v > a {
			a = v
		}
	}
	return a
}

// setLogLevel sets the default log-level to WARNING.
func setLogLevel() {
	logging.SetLevel(logging.WARNING, "optimize")
	logging.SetLevel(logging.WARNING, "cmodel")
}
