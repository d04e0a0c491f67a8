package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flightbase/logbook/internal/flighttime"
	"github.com/flightbase/logbook/internal/store"
	"github.com/flightbase/logbook/internal/types"
)

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Manage flight entries",
	Long:  "Add, list, show, and delete flight entries without running the server.",
}

var (
	entryJSONOutput bool

	addFlightDate    string
	addRegistration  string
	addAircraftType  string
	addDepartureICAO string
	addArrivalICAO   string
	addTotalTime     int
	addPICTime       int
	addNightTime     int
	addDayLandings   int
	addNightLandings int
	addRemarks       string
)

var entryAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a flight entry",
	Args:  cobra.NoArgs,
	RunE:  runEntryAdd,
}

var entryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List flight entries",
	Args:  cobra.NoArgs,
	RunE:  runEntryList,
}

var entryShowCmd = &cobra.Command{
	Use:   "show <local-id>",
	Short: "Show one flight entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntryShow,
}

var entryDeleteCmd = &cobra.Command{
	Use:   "delete <local-id>",
	Short: "Delete a flight entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntryDelete,
}

func init() {
	entryCmd.PersistentFlags().BoolVar(&entryJSONOutput, "json", false, "Output in JSON format")

	entryAddCmd.Flags().StringVar(&addFlightDate, "date", "", "Flight date (YYYY-MM-DD)")
	entryAddCmd.Flags().StringVar(&addRegistration, "reg", "", "Aircraft registration")
	entryAddCmd.Flags().StringVar(&addAircraftType, "type", "", "Aircraft type designator")
	entryAddCmd.Flags().StringVar(&addDepartureICAO, "from", "", "Departure airport ICAO code")
	entryAddCmd.Flags().StringVar(&addArrivalICAO, "to", "", "Arrival airport ICAO code")
	entryAddCmd.Flags().IntVar(&addTotalTime, "total", 0, "Total time in minutes")
	entryAddCmd.Flags().IntVar(&addPICTime, "pic", 0, "PIC time in minutes")
	entryAddCmd.Flags().IntVar(&addNightTime, "night", 0, "Night time in minutes")
	entryAddCmd.Flags().IntVar(&addDayLandings, "day-landings", 0, "Day landings")
	entryAddCmd.Flags().IntVar(&addNightLandings, "night-landings", 0, "Night landings")
	entryAddCmd.Flags().StringVar(&addRemarks, "remarks", "", "Free-text remarks")
	for _, flag := range []string{"date", "reg", "from", "to"} {
		_ = entryAddCmd.MarkFlagRequired(flag)
	}

	entryCmd.AddCommand(entryAddCmd)
	entryCmd.AddCommand(entryListCmd)
	entryCmd.AddCommand(entryShowCmd)
	entryCmd.AddCommand(entryDeleteCmd)
}

func runEntryAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	date, err := time.Parse("2006-01-02", addFlightDate)
	if err != nil {
		return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", addFlightDate)
	}

	s, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	entry, err := s.CreateEntry(ctx, &types.FlightEntry{
		FlightDate:    date,
		Registration:  addRegistration,
		AircraftType:  addAircraftType,
		DepartureICAO: addDepartureICAO,
		ArrivalICAO:   addArrivalICAO,
		TotalTime:     addTotalTime,
		PICTime:       addPICTime,
		NightTime:     addNightTime,
		DayLandings:   addDayLandings,
		NightLandings: addNightLandings,
		Remarks:       addRemarks,
	})
	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}

	if entryJSONOutput {
		return printJSON(cmd.OutOrStdout(), entry)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s %s→%s, %s)\n",
		entry.LocalID, entry.FlightDate.Format("2006-01-02"),
		entry.DepartureICAO, entry.ArrivalICAO,
		flighttime.FormatMinutes(entry.TotalTime))
	return nil
}

func runEntryList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.ListEntries(ctx, store.ListOptions{})
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}

	out := cmd.OutOrStdout()
	if entryJSONOutput {
		return printJSON(out, map[string]any{
			"entries": entries,
			"total":   len(entries),
		})
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No entries found.")
		return nil
	}

	w := newTabWriter(out)
	fmt.Fprintln(w, "LOCAL ID\tDATE\tROUTE\tREG\tTOTAL\tSYNC")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s→%s\t%s\t%s\t%s\n",
			e.LocalID,
			e.FlightDate.Format("2006-01-02"),
			e.DepartureICAO, e.ArrivalICAO,
			e.Registration,
			flighttime.FormatMinutes(e.TotalTime),
			e.SyncStatus,
		)
	}
	return w.Flush()
}

func runEntryShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	entry, err := s.GetEntry(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get entry: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), entry)
}

func runEntryDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteEntry(ctx, args[0]); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}
