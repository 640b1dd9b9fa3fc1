package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"carshine/internal/database"
	"carshine/internal/google"
	"carshine/internal/models"
)

// One-shot tool: rebuilds the Google Sheets mirror from the sqlite ledger.
// Useful after restoring a backup or when the sheet drifted.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dbPath      = flag.String("db", "./data/bookings.db", "path to sqlite db")
		credentials = flag.String("credentials", "configs/google-credentials.json", "path to service account JSON")
		sheetID     = flag.String("sheet", "", "bookings spreadsheet ID")
	)
	flag.Parse()

	if *sheetID == "" {
		return fmt.Errorf("sheet ID is required")
	}

	db, err := database.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	sheets, err := google.NewSheetsService(*credentials, *sheetID)
	if err != nil {
		return fmt.Errorf("init sheets: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := sheets.TestConnection(ctx); err != nil {
		if email, emailErr := sheets.GetServiceAccountEmail(*credentials); emailErr == nil {
			fmt.Printf("Share the spreadsheet with %s\n", email)
		}
		return fmt.Errorf("sheets connection: %w", err)
	}

	rows, err := db.GetAllBookings(ctx, "", "")
	if err != nil {
		return fmt.Errorf("load bookings: %w", err)
	}

	bookings := make([]*models.Booking, 0, len(rows))
	for _, row := range rows {
		b := row.Booking
		bookings = append(bookings, &b)
	}

	if err := sheets.ReplaceBookingsSheet(ctx, bookings); err != nil {
		return fmt.Errorf("replace sheet: %w", err)
	}

	fmt.Printf("Synced %d bookings to the spreadsheet\n", len(bookings))
	return nil
}
