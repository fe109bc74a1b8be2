// Command seed loads daily admission counts into the service database so
// the rolling admission average has history to work with.
//
// Seed a flat backfill:
//
//	go run ./cmd/seed -db data/surge.db -location Delhi -days 7 -count 110
//
// Or load per-day counts from a CSV of date,count rows:
//
//	go run ./cmd/seed -db data/surge.db -location Delhi -csv admissions.csv
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/couchcryptid/surge-forecast/internal/domain"
	"github.com/couchcryptid/surge-forecast/internal/store"
)

const dayFormat = "2006-01-02"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dbPath := flag.String("db", "data/surge.db", "path to the SQLite database")
	location := flag.String("location", "", "location to seed admissions for")
	days := flag.Int("days", 7, "number of past days to backfill")
	count := flag.Int("count", 100, "daily admission count for the backfill")
	csvPath := flag.String("csv", "", "optional CSV of date,count rows; overrides -days/-count")
	flag.Parse()

	if *location == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -location")
	}
	loc, err := domain.NormalizeLocation(*location)
	if err != nil {
		return err
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if *csvPath != "" {
		return seedFromCSV(ctx, st, loc, *csvPath)
	}
	return seedFlat(ctx, st, loc, *days, *count)
}

func seedFlat(ctx context.Context, st *store.Store, loc string, days, count int) error {
	if days < 1 {
		return fmt.Errorf("-days must be at least 1")
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	for i := 1; i <= days; i++ {
		day := today.AddDate(0, 0, -i)
		if err := st.RecordAdmissions(ctx, loc, day, count); err != nil {
			return fmt.Errorf("record admissions for %s: %w", day.Format(dayFormat), err)
		}
	}
	log.Printf("seeded %d days of %d admissions for %s", days, count, loc)
	return nil
}

func seedFromCSV(ctx context.Context, st *store.Store, loc, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	seeded := 0
	for i, row := range rows {
		if len(row) != 2 {
			return fmt.Errorf("%s row %d: want date,count", path, i+1)
		}
		day, err := time.Parse(dayFormat, row[0])
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		count, err := strconv.Atoi(row[1])
		if err != nil || count < 0 {
			return fmt.Errorf("%s row %d: invalid count %q", path, i+1, row[1])
		}
		if err := st.RecordAdmissions(ctx, loc, day.UTC(), count); err != nil {
			return fmt.Errorf("record admissions for %s: %w", row[0], err)
		}
		seeded++
	}
	log.Printf("seeded %d days of admissions for %s from %s", seeded, loc, path)
	return nil
}
