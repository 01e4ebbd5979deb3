// Package seedpack imports the operator-curated CSV pack of pools, wallets
// and ignore entries at startup.
package seedpack

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rawblock/titan-engine/internal/db"
	"github.com/rawblock/titan-engine/pkg/models"
)

const (
	poolsFile   = "watched_pools.csv"
	walletsFile = "seed_wallets.csv"
	ignoreFile  = "ignore_list.csv"

	// Seed pairs outlive autopilot discoveries by design.
	seedPairTTL = 30 * 24 * time.Hour

	defaultPriorWeight = 0.3
)

// Importer loads the seed pack directory into Postgres.
type Importer struct {
	store *db.PostgresStore
	log   zerolog.Logger
}

// New builds an importer.
func New(store *db.PostgresStore, logger zerolog.Logger) *Importer {
	return &Importer{store: store, log: logger}
}

// Import loads all three CSVs from dir. Missing files are skipped, malformed
// rows are logged and dropped, the rest proceed.
func (i *Importer) Import(ctx context.Context, dir string) error {
	if dir == "" {
		return nil
	}
	if err := i.importPools(ctx, filepath.Join(dir, poolsFile)); err != nil {
		return err
	}
	if err := i.importWallets(ctx, filepath.Join(dir, walletsFile)); err != nil {
		return err
	}
	return i.importIgnores(ctx, filepath.Join(dir, ignoreFile))
}

// watched_pools.csv: chain,pair_address,dex,token0_address,token1_address
func (i *Importer) importPools(ctx context.Context, path string) error {
	rows, err := readCSV(path)
	if err != nil {
		return err
	}
	count := 0
	expires := time.Now().UTC().Add(seedPairTTL)
	for _, row := range rows {
		chain, pair, ok := chainAndAddress(row)
		if !ok || len(row) < 3 {
			i.log.Warn().Strs("row", row).Msg("malformed seed pool row")
			continue
		}
		var token0, token1 *string
		if len(row) > 3 && row[3] != "" {
			token0 = models.StringPtr(strings.ToLower(row[3]))
		}
		if len(row) > 4 && row[4] != "" {
			token1 = models.StringPtr(strings.ToLower(row[4]))
		}
		if err := i.store.UpsertSeedPair(ctx, chain, pair, strings.ToLower(row[2]), token0, token1, expires); err != nil {
			return err
		}
		count++
	}
	if count > 0 {
		i.log.Info().Int("pools", count).Msg("seed pools imported")
	}
	return nil
}

// seed_wallets.csv: chain,address[,prior_weight]
func (i *Importer) importWallets(ctx context.Context, path string) error {
	rows, err := readCSV(path)
	if err != nil {
		return err
	}
	count := 0
	for _, row := range rows {
		chain, address, ok := chainAndAddress(row)
		if !ok {
			i.log.Warn().Strs("row", row).Msg("malformed seed wallet row")
			continue
		}
		prior := defaultPriorWeight
		if len(row) > 2 && row[2] != "" {
			if v, err := strconv.ParseFloat(row[2], 64); err == nil && v >= 0 && v <= 1 {
				prior = v
			}
		}
		if err := i.store.UpsertSeedWallet(ctx, chain, address, models.DecimalFromFloat(prior)); err != nil {
			return err
		}
		count++
	}
	if count > 0 {
		i.log.Info().Int("wallets", count).Msg("seed wallets imported")
	}
	return nil
}

// ignore_list.csv: chain,address[,reason]
func (i *Importer) importIgnores(ctx context.Context, path string) error {
	rows, err := readCSV(path)
	if err != nil {
		return err
	}
	count := 0
	for _, row := range rows {
		chain, address, ok := chainAndAddress(row)
		if !ok {
			i.log.Warn().Strs("row", row).Msg("malformed ignore row")
			continue
		}
		reason := "seed_pack_ignore"
		if len(row) > 2 && row[2] != "" {
			reason = row[2]
		}
		if err := i.store.IgnoreWallet(ctx, chain, address, reason); err != nil {
			return err
		}
		count++
	}
	if count > 0 {
		i.log.Info().Int("ignored", count).Msg("ignore list imported")
	}
	return nil
}

// readCSV returns data rows, skipping a header line when present. A missing
// file is not an error.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) > 0 && strings.EqualFold(row[0], "chain") {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// chainAndAddress validates the two leading columns shared by every file.
func chainAndAddress(row []string) (string, string, bool) {
	if len(row) < 2 {
		return "", "", false
	}
	chain := strings.ToLower(strings.TrimSpace(row[0]))
	address := strings.ToLower(strings.TrimSpace(row[1]))
	if chain != models.ChainEthereum && chain != models.ChainBSC {
		return "", "", false
	}
	if !strings.HasPrefix(address, "0x") || len(address) != 42 {
		return "", "", false
	}
	return chain, address, true
}
