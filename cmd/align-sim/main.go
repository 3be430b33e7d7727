// Command align-sim runs a synthetic end-to-end alignment: a device walks
// a known path while noisy location fixes, compass readings and terrain
// point clouds feed a positioning provider. It prints the recovered
// transform against the ground truth and can write plots.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/banshee-data/geoalign/internal/alignment"
	"github.com/banshee-data/geoalign/internal/config"
	"github.com/banshee-data/geoalign/internal/monitoring"
	"github.com/banshee-data/geoalign/internal/positioning"
	"github.com/banshee-data/geoalign/internal/units"
	"github.com/banshee-data/geoalign/internal/version"
)

func main() {
	def := DefaultScenario()

	steps := flag.Int("steps", def.Steps, "Number of one-step samples to simulate")
	seed := flag.Uint64("seed", def.Seed, "Random seed")
	x0 := flag.Float64("x0", def.Truth.X0, "True east offset of the device frame (m)")
	y0 := flag.Float64("y0", def.Truth.Y0, "True north offset of the device frame (m)")
	z0 := flag.Float64("z0", def.Truth.Z0, "True vertical offset of the device frame (m)")
	azDeg := flag.Float64("az", units.Degrees(def.Truth.Az), "True rotation of the device frame (degrees)")
	fixNoise := flag.Float64("fix-noise", def.FixNoise, "Horizontal fix noise (m)")
	compassNoise := flag.Float64("compass-noise", units.Degrees(def.CompassNoise), "Compass noise (degrees)")
	outlierEvery := flag.Int("outlier-every", def.OutlierEvery, "Displace every Nth fix by -outlier-size metres (0 disables)")
	outlierSize := flag.Float64("outlier-size", def.OutlierSize, "Gross fix error (m)")
	cloudEvery := flag.Int("cloud-every", def.CloudEvery, "Observe a terrain point cloud every N steps (0 disables)")
	configPath := flag.String("config", "", "Path to tuning JSON (defaults built in)")
	plotDir := flag.String("plot", "", "Write track and residual PNGs to this directory")
	speedUnits := flag.String("units", units.KPH, "Speed units for the summary: "+units.GetValidUnitsString())
	verbose := flag.Bool("v", false, "Log estimator and provider diagnostics to stderr")
	trace := flag.Bool("trace", false, "Log per-iteration and per-sample detail to stderr")
	quiet := flag.Bool("q", false, "Suppress per-solve summary lines")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("align-sim"))
		return
	}

	if !units.IsValid(*speedUnits) {
		log.Fatalf("invalid -units %q, want one of %s", *speedUnits, units.GetValidUnitsString())
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	var diag, tr io.Writer
	if *verbose {
		diag = os.Stderr
	}
	if *trace {
		tr = os.Stderr
	}
	alignment.SetLogWriters(os.Stderr, diag, tr)
	positioning.SetLogWriters(os.Stderr, diag, tr)
	if *quiet {
		monitoring.SetLogger(nil)
	}

	sc := def
	sc.Steps = *steps
	sc.Seed = *seed
	sc.Truth = alignment.NewParameters(*x0, *y0, *z0, units.Radians(*azDeg))
	sc.FixNoise = *fixNoise
	sc.CompassNoise = units.Radians(*compassNoise)
	sc.OutlierEvery = *outlierEvery
	sc.OutlierSize = *outlierSize
	sc.CloudEvery = *cloudEvery

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := Run(ctx, sc, positioning.FromTuning(tuning))
	if err != nil {
		log.Fatalf("simulation failed: %v", err)
	}

	printSummary(os.Stdout, sc, res, *speedUnits)

	if *plotDir != "" {
		files, err := writePlots(*plotDir, res)
		if err != nil {
			log.Fatalf("plot: %v", err)
		}
		for _, f := range files {
			fmt.Printf("wrote %s\n", f)
		}
	}

	if !res.Estimate.Accepted {
		os.Exit(1)
	}
}

func printSummary(w io.Writer, sc Scenario, res Result, speedUnits string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	p := res.Estimate.Parameters
	fmt.Fprintf(tw, "origin\t%s\n", res.Origin)
	fmt.Fprintf(tw, "observations\t%d\n", res.Estimate.Observations)
	fmt.Fprintf(tw, "solves\t%d\n", res.Solves)
	fmt.Fprintf(tw, "converged\t%v\n", res.Estimate.Converged)
	fmt.Fprintf(tw, "accepted\t%v\n", res.Estimate.Accepted)
	fmt.Fprintf(tw, "az (true / est)\t%.3f° / %.3f° ± %.3f°\n",
		units.Degrees(sc.Truth.Az), units.Degrees(p.Az), units.Degrees(math.Sqrt(p.AzSigma2)))
	fmt.Fprintf(tw, "az error\t%.3f°\n", units.Degrees(res.AzError))
	fmt.Fprintf(tw, "translation\tx=%.2f y=%.2f z=%.2f (local to origin)\n", p.X0, p.Y0, p.Z0)
	fmt.Fprintf(tw, "sd xy / z\t%.3f m / %.3f m\n", math.Sqrt(p.XYSigma2), math.Sqrt(p.ZSigma2))
	if res.Location.Filtered {
		fmt.Fprintf(tw, "location\t%.7f, %.7f h=%.2f ±%.2f m\n", res.Location.Lat, res.Location.Lon, res.Location.Height, res.Location.Accuracy)
		fmt.Fprintf(tw, "location error\t%.3f m\n", res.LocationError)
		fmt.Fprintf(tw, "speed / bearing\t%.2f %s / %.1f°\n", res.Location.SpeedIn(speedUnits), speedUnits, res.Location.Bearing)
	}

	down := 0
	for _, o := range res.Observations {
		if o.Residuals().Weight < 1 {
			down++
		}
	}
	fmt.Fprintf(tw, "down-weighted\t%d of %d\n", down, len(res.Observations))

	total, acc, rej := monitoring.SolveStats()
	fmt.Fprintf(tw, "solve log\t%d total, %d accepted, %d rejected\n", total, acc, rej)
}
