/*

Excodon builds codon substitution models (M0 and the
preference-informed ExpCM) on a phylogenetic tree and optimizes their
likelihood.

The basic usage of excodon looks like this:

	excodon alignment.fst tree.nwk

, this will run the M0 model with a default optimizer (LBFGS-B).

For the preference-informed model provide a preference table:

	excodon -model ExpCM -prefs prefs.tsv alignment.fst tree.nwk

To see all the options run:

	excodon -h

*/
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"

	"bitbucket.org/Davydov/excodon/bio"
	"bitbucket.org/Davydov/excodon/checkpoint"
	"bitbucket.org/Davydov/excodon/prefs"
	"bitbucket.org/Davydov/excodon/treelik"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("excodon")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("excodon", "codon model builder and likelihood optimizer").Version(version)

	// input tree and alignment
	alignmentFileName = app.Arg("alignment", "sequence alignment").Required().ExistingFile()
	treeFileName      = app.Arg("tree", "starting phylogenetic tree").Required().ExistingFile()

	// model parameters
	model         = app.Flag("model", "model type (M0 or ExpCM)").Default("M0").String()
	gcodeID       = app.Flag("gcode", "NCBI genetic code id, standard by default").Default("1").Int()
	cFreq         = app.Flag("cfreq", "codon frequency (F0 or F3X4)").Default("F3X4").String()
	cFreqFileName = app.Flag("cfreqfn", "codon frequencies file (overrides -cfreq)").String()
	prefsFileName = app.Flag("prefs", "amino acid preferences file (ExpCM)").ExistingFile()
	optPrefs      = app.Flag("optprefs", "optimize amino acid preferences (ExpCM)").Bool()
	omegaBySite   = app.Flag("omegabysite", "one omega per codon site").Bool()
	ncat          = app.Flag("ncat", "number of categories for the gamma rate variation (no variation by default)").Default("1").Int()
	maxBrLen      = app.Flag("maxbrlen", "maximum branch length").Default("100").Float64()
	noOptBrLen    = app.Flag("nobrlen", "don't optimize branch lengths").Bool()
	inferTopology = app.Flag("infertopology", "search tree topology with nearest-neighbor interchanges").Bool()
	recursion     = app.Flag("recursion", "pruning recursion (S: simple, D: double)").Default("S").Enum("S", "D")
	oldLikelihood = app.Flag("oldlikelihood", "compute the likelihood without the process collection (M0 only)").Bool()

	// optimizer parameters
	randomize  = app.Flag("randomize", "use uniformly distributed random starting point").Bool()
	iterations = app.Flag("iter", "number of iterations per round").Default("500").Int()
	rounds     = app.Flag("rounds", "maximum number of optimization rounds").Default("5").Int()
	tolerance  = app.Flag("tolerance", "relative likelihood convergence tolerance").Default("1e-6").Float64()
	report     = app.Flag("report", "report every N iterations").Default("10").Int()
	method     = app.Flag("method", "optimization method to use "+
		"(lbfgsb: limited-memory Broyden–Fletcher–Goldfarb–Shanno with bounding constraints, "+
		"simplex: downhill simplex, "+
		"none: just compute likelihood, no optimization"+
		")").Default("lbfgsb").String()

	startF = app.Flag("start", "read start position from a trajectory or JSON file").ExistingFile()

	// technical
	nThreads   = app.Flag("nt", "number of threads to use").Int()
	seed       = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	cpuProfile = app.Flag("cpuprofile", "write cpu profile to file").String()

	// input/output
	outLogF     = app.Flag("log", "write log to a file").String()
	outTreeF    = app.Flag("tree", "write tree to a file").String()
	checkpointF = app.Flag("checkpoint", "checkpoint database file").String()
	checkpointS = app.Flag("cseconds", "checkpoint save interval in seconds").Default("30").Float64()
	logLevel    = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()
)

func run() (summary *RunSummary) {
	startTime := time.Now()
	summary = &RunSummary{Model: *model}

	fastaFile, err := os.Open(*alignmentFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer fastaFile.Close()

	ali, err := bio.ParseFasta(fastaFile)
	if err != nil {
		log.Fatal(err)
	}
	names := make([]string, len(ali))
	seqs := make([]string, len(ali))
	for i, seq := range ali {
		names[i] = seq.Name
		seqs[i] = seq.Sequence
	}

	nwk, err := os.ReadFile(*treeFileName)
	if err != nil {
		log.Fatal(err)
	}

	s := treelik.DefaultSettings()
	s.Model = *model
	s.GCodeID = *gcodeID
	s.CodonFrequency = *cFreq
	s.CodonFrequencyFileName = *cFreqFileName
	s.NCat = *ncat
	s.Recursion = (*recursion)[0]
	s.OldLikelihoodMethod = *oldLikelihood
	s.OmegaBySite = *omegaBySite
	s.FixPreferences = !*optPrefs
	s.FixBranchLengths = *noOptBrLen
	s.InferTopology = *inferTopology
	s.Method = *method
	s.MaxIterations = *iterations
	s.MaxRounds = *rounds
	s.Tolerance = *tolerance
	s.MaxBranchLength = *maxBrLen
	s.RandomStart = *randomize
	s.StartFileName = *startF
	s.ReportPeriod = *report
	s.Quiet = false

	if *prefsFileName != "" {
		prefsFile, err := os.Open(*prefsFileName)
		if err != nil {
			log.Fatal(err)
		}
		s.Preferences, err = prefs.Read(prefsFile)
		prefsFile.Close()
		if err != nil {
			log.Fatal("Error reading preferences:", err)
		}
	}

	if *checkpointF != "" {
		db, err := bolt.Open(*checkpointF, 0666, nil)
		if err != nil {
			log.Fatal("Error creating checkpoint file:", err)
		}
		defer db.Close()
		key := []byte(fmt.Sprintf("%s:%s:%s",
			*model, *alignmentFileName, *treeFileName))
		s.Checkpoint = checkpoint.NewCheckpointIO(db, key, *checkpointS)
	}

	tl, err := treelik.New(names, seqs, string(nwk), s)
	if err != nil {
		log.Fatal(err)
	}

	log.Infof("Model %s, %d sequences, %d codon sites",
		*model, tl.NSeqs(), tl.NSites())
	summary.NSequences = tl.NSeqs()
	summary.NSites = tl.NSites()
	summary.StartingTree = tl.NewickTree()
	if ignored := tl.OptimizationIgnoredParameters(); ignored != "" {
		log.Infof("Parameters excluded from optimization: %s", ignored)
		summary.IgnoredParameters = ignored
	}

	lnL, err := tl.OptimizeLikelihood()
	summary.Converged = true
	switch {
	case errors.Is(err, treelik.ErrNonConvergence):
		log.Warning(err)
		summary.Converged = false
	case err != nil:
		log.Fatal(err)
	}
	log.Noticef("Maximum likelihood: %v", lnL)
	summary.MaxLnL = lnL
	summary.MaxLParameters = tl.ModelParams()
	summary.SiteLnL = tl.SiteLogLikelihoods()

	if !*noOptBrLen || *inferTopology {
		log.Infof("outtree=%s", tl.NewickTree())
		summary.FinalTree = tl.NewickTree()
	}

	if *outTreeF != "" {
		if err := tl.SaveNewickTree(*outTreeF); err != nil {
			log.Error("Error writing tree output file:", err)
		}
	}

	endTime := time.Now()

	deltaT := endTime.Sub(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.Time = deltaT.Seconds()

	return
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	logging.SetLevel(level, "excodon")
	logging.SetLevel(level, "treelik")
	logging.SetLevel(level, "optimize")
	logging.SetLevel(level, "cmodel")

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)

	rand.Seed(*seed)
	runtime.GOMAXPROCS(*nThreads)

	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.\n", effectiveNThreads)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	summary := run()
	summary.NThreads = effectiveNThreads
	summary.Version = version
	summary.CommandLine = os.Args
	summary.Seed = *seed

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
}
