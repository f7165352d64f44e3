package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/rxrebate/internal/db"
	"github.com/noah-isme/rxrebate/internal/obs"
	"github.com/noah-isme/rxrebate/internal/rebate"
)

type drug struct {
	RxCUI    string
	FullName string
}

type pharmacy struct {
	NCPDPID   string
	StoreName string
}

var drugs = []drug{
	{"197361", "Amlodipine 5 MG Oral Tablet"},
	{"314076", "Lisinopril 10 MG Oral Tablet"},
	{"860975", "Metformin 500 MG Extended Release Oral Tablet"},
	{"617312", "Atorvastatin 10 MG Oral Tablet"},
	{"308136", "Amoxicillin 500 MG Oral Capsule"},
}

var pharmacies = []pharmacy{
	{"0312345", "Main Street Pharmacy"},
	{"0398765", "Lakeside Drug"},
	{"0355501", "Northgate Apothecary"},
}

func pct(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Price type 1 is brand AWP, 2 is generic MAC.
var rules = []rebate.Rule{
	{PharmacyID: "any", DrugIDName: "ndc11", DrugID: "any", PriceTypeID: 1, RebatePercent: pct("2.5")},
	{PharmacyID: "0312345", DrugIDName: "ndc11", DrugID: "any", PriceTypeID: 1, RebatePercent: pct("5")},
	{PharmacyID: "0398765", DrugIDName: "ndc11", DrugID: "00069015001", PriceTypeID: 1, RebatePercent: pct("12.345")},
	{PharmacyID: "0398765", DrugIDName: "ndc11", DrugID: "00093505601", PriceTypeID: 2, RebatePercent: pct("7.5")},
	{PharmacyID: "0355501", DrugIDName: "ndc11", DrugID: "any", PriceTypeID: 2, RebatePercent: pct("4")},
	{PharmacyID: "0355501", DrugIDName: "ndc11", DrugID: "any", PriceTypeID: 1, RebatePercent: pct("3")},
}

func main() {
	reset := flag.Bool("reset", false, "delete existing rebate rules before seeding")
	migrate := flag.Bool("migrate", true, "apply migrations first")
	flag.Parse()

	logger := obs.NewLogger("console", "info")
	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, relying on environment variables")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}
	if *migrate {
		if err := db.Up(dbURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer func() { _ = conn.Close(context.Background()) }()

	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		return seed(ctx, tx, *reset, logger)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seeding failed")
	}
	logger.Info().Msg("seeding completed")
}

func seed(ctx context.Context, tx pgx.Tx, reset bool, logger zerolog.Logger) error {
	batch := &pgx.Batch{}
	for _, d := range drugs {
		batch.Queue(`INSERT INTO drug (rxcui, full_name) VALUES ($1, $2)
			ON CONFLICT (rxcui) DO UPDATE SET full_name = EXCLUDED.full_name`, d.RxCUI, d.FullName)
	}
	for _, p := range pharmacies {
		batch.Queue(`INSERT INTO pharmacy (ncpdpid, store_name) VALUES ($1, $2)
			ON CONFLICT (ncpdpid) DO UPDATE SET store_name = EXCLUDED.store_name`, p.NCPDPID, p.StoreName)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	logger.Info().Int("drugs", len(drugs)).Int("pharmacies", len(pharmacies)).Msg("catalogue upserted")

	if reset {
		if _, err := tx.Exec(ctx, `DELETE FROM rebate`); err != nil {
			return err
		}
	}
	var existing int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM rebate`).Scan(&existing); err != nil {
		return err
	}
	if existing > 0 {
		logger.Info().Int("rules", existing).Msg("rebate rules already present, skipping (use -reset to replace)")
		return nil
	}

	rulesBatch := &pgx.Batch{}
	for _, r := range rules {
		rulesBatch.Queue(`INSERT INTO rebate (pharmacy_id, drug_id_name, drug_id, price_type_id, rebate_percent)
			VALUES ($1, $2, $3, $4, $5::text::numeric)`,
			r.PharmacyID, r.DrugIDName, r.DrugID, r.PriceTypeID, r.RebatePercent.String())
	}
	if err := tx.SendBatch(ctx, rulesBatch).Close(); err != nil {
		return err
	}
	logger.Info().Int("rules", len(rules)).Msg("rebate rules inserted")
	return nil
}
