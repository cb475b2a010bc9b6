// plotrates creates a plot of the discrete gamma rate categories used
// for the site rate variation.
package main

import (
	"flag"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"bitbucket.org/Davydov/excodon/dist"
)

func main() {
	alpha := flag.Float64("alpha", 1, "gamma shape parameter")
	k := flag.Int("k", 4, "number of rate categories")
	useMedian := flag.Bool("median", false, "Use median instead of mean")
	out := flag.String("out", "rates.png", "output file")
	flag.Parse()

	// mean rate 1 with beta=alpha
	r := dist.DiscreteGamma(*alpha, *alpha, *k, *useMedian, nil, nil)
	fmt.Println(r)
	p, err := plot.New()
	if err != nil {
		panic(err)
	}
	p.X.Label.Text = "rate"
	p.Y.Label.Text = "cumulative probability"

	pts := make(plotter.XYs, *k)
	x := 0.0
	for i, v := range r {
		pts[i].X = v
		pts[i].Y = x
		x += 1. / float64(*k)
	}

	err = plotutil.AddLinePoints(p,
		"rates", pts)
	if err != nil {
		panic(err)
	}

	if err := p.Save(4*vg.Inch, 4*vg.Inch, *out); err != nil {
		panic(err)
	}
}
