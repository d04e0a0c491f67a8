package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flightbase/logbook/internal/airports"
)

var airportsJSONOutput bool

var airportsCmd = &cobra.Command{
	Use:   "airports",
	Short: "Manage airport reference data",
}

var airportsImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import an airport dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  runAirportsImport,
}

var airportsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search airports by code, name or city",
	Args:  cobra.ExactArgs(1),
	RunE:  runAirportsSearch,
}

func init() {
	airportsCmd.PersistentFlags().BoolVar(&airportsJSONOutput, "json", false, "Output in JSON format")
	airportsCmd.AddCommand(airportsImportCmd)
	airportsCmd.AddCommand(airportsSearchCmd)
}

func runAirportsImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := airports.ImportFile(ctx, s, args[0])
	if err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}

	if airportsJSONOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d airports (%d new, %d rows skipped)\n",
		result.Parsed, result.Inserted, result.Skipped)
	return nil
}

func runAirportsSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	found, err := s.SearchAirports(ctx, args[0], 0)
	if err != nil {
		return fmt.Errorf("search airports: %w", err)
	}

	out := cmd.OutOrStdout()
	if airportsJSONOutput {
		return printJSON(out, map[string]any{
			"airports": found,
			"total":    len(found),
		})
	}

	if len(found) == 0 {
		fmt.Fprintln(out, "No airports found.")
		return nil
	}

	w := newTabWriter(out)
	fmt.Fprintln(w, "ICAO\tIATA\tNAME\tCITY\tCOUNTRY")
	for _, a := range found {
		iata := ""
		if a.IATA != nil {
			iata = *a.IATA
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ICAO, iata, a.Name, a.City, a.Country)
	}
	return w.Flush()
}
