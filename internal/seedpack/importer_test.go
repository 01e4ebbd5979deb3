package seedpack

import (
	"os"
	"path/filepath"
	"testing"
)

func TestChainAndAddress(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		ok   bool
	}{
		{"valid ethereum", []string{"ethereum", "0x1111111111111111111111111111111111111111"}, true},
		{"uppercase normalized", []string{"BSC", "0xABCDABCDABCDABCDABCDABCDABCDABCDABCDABCD"}, true},
		{"unknown chain", []string{"solana", "0x1111111111111111111111111111111111111111"}, false},
		{"short address", []string{"ethereum", "0x1234"}, false},
		{"missing address", []string{"ethereum"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, address, ok := chainAndAddress(tt.row)
			if ok != tt.ok {
				t.Fatalf("chainAndAddress(%v) ok = %v, want %v", tt.row, ok, tt.ok)
			}
			if ok && (chain != "ethereum" && chain != "bsc") {
				t.Errorf("chain %q not normalized", chain)
			}
			if ok && address[0:2] != "0x" {
				t.Errorf("address %q not normalized", address)
			}
		})
	}
}

func TestReadCSVSkipsHeaderAndMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed_wallets.csv")
	content := "chain,address,prior_weight\nethereum,0x1111111111111111111111111111111111111111,0.5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rows, err := readCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1 after header skip", len(rows))
	}
	if rows[0][2] != "0.5" {
		t.Errorf("prior column = %q", rows[0][2])
	}

	missing, err := readCSV(filepath.Join(dir, "nope.csv"))
	if err != nil || missing != nil {
		t.Errorf("missing file should be (nil, nil), got (%v, %v)", missing, err)
	}
}

func TestReadCSVRaggedRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ignore_list.csv")
	content := "ethereum,0x1111111111111111111111111111111111111111\nbsc,0x2222222222222222222222222222222222222222,mev bot\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rows, err := readCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if len(rows[0]) != 2 || len(rows[1]) != 3 {
		t.Errorf("ragged widths not preserved: %v", rows)
	}
}
