package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ownerfi/dealflow/internal/geo"
)

var geoCmd = &cobra.Command{
	Use:   "geo",
	Short: "City radius lookups",
	Long:  "Inspect the embedded city coordinate index used for buyer radius matching.",
}

var (
	geoRadius float64
	geoLimit  int
)

var geoNearbyCmd = &cobra.Command{
	Use:   "nearby <city> <state>",
	Short: "List cities within a radius of an origin city",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := geo.NewIndex()
		if err != nil {
			return eris.Wrap(err, "load city index")
		}

		city, state := args[0], args[1]
		if _, ok := ix.Find(city, state); !ok {
			return eris.Errorf("unknown city: %s, %s", city, state)
		}

		matches := ix.CitiesWithinRadius(city, state, geoRadius)
		if geoLimit > 0 && len(matches) > geoLimit {
			matches = matches[:geoLimit]
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "CITY\tSTATE\tMILES")
		for _, m := range matches {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f\n", m.Name, m.State, m.Distance)
		}
		return w.Flush()
	},
}

var geoStateCmd = &cobra.Command{
	Use:   "state <state>",
	Short: "List indexed cities in a state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := geo.NewIndex()
		if err != nil {
			return eris.Wrap(err, "load city index")
		}

		cities := ix.InState(args[0])
		if len(cities) == 0 {
			fmt.Fprintln(os.Stderr, "No cities indexed for that state.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "CITY\tLAT\tLNG")
		for _, c := range cities {
			_, _ = fmt.Fprintf(w, "%s\t%.4f\t%.4f\n", c.Name, c.Lat, c.Lng)
		}
		return w.Flush()
	},
}

func init() {
	geoNearbyCmd.Flags().Float64Var(&geoRadius, "radius", 35, "search radius in miles")
	geoNearbyCmd.Flags().IntVar(&geoLimit, "limit", 0, "max cities to display (0 = all)")

	geoCmd.AddCommand(geoNearbyCmd)
	geoCmd.AddCommand(geoStateCmd)
	rootCmd.AddCommand(geoCmd)
}
