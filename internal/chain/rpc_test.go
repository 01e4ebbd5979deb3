package chain

import (
	"math/big"
	"testing"
)

func TestAddressFromWord(t *testing.T) {
	tests := []struct {
		name    string
		word    string
		want    string
		wantErr bool
	}{
		{
			name: "padded abi word",
			word: "0x000000000000000000000000c02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
			want: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
		},
		{
			name: "uppercase input is lowercased",
			word: "0x000000000000000000000000C02AAA39B223FE8D0A0E5C4F27EAD9083C756CC2",
			want: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
		},
		{name: "too short", word: "0x1234", wantErr: true},
		{name: "empty", word: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AddressFromWord(tt.word)
			if (err != nil) != tt.wantErr {
				t.Fatalf("AddressFromWord() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("AddressFromWord() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReceiptGasCostWei(t *testing.T) {
	r := &Receipt{GasUsed: "0x5208", EffectiveGasPrice: "0x3b9aca00"}
	cost, err := r.GasCostWei()
	if err != nil {
		t.Fatalf("GasCostWei() error = %v", err)
	}
	// 21000 * 1 gwei
	want := new(big.Int).Mul(big.NewInt(21000), big.NewInt(1_000_000_000))
	if cost.Cmp(want) != 0 {
		t.Errorf("GasCostWei() = %s, want %s", cost, want)
	}
}

func TestWeiToNative(t *testing.T) {
	one := new(big.Int)
	one.SetString("1000000000000000000", 10)
	if got := WeiToNative(one); got != 1.0 {
		t.Errorf("WeiToNative(1e18) = %v, want 1.0", got)
	}
}

func TestParseHexBig(t *testing.T) {
	if _, err := ParseHexBig("0x"); err == nil {
		t.Error("expected error for empty quantity")
	}
	if _, err := ParseHexBig("0xzz"); err == nil {
		t.Error("expected error for invalid hex")
	}
	n, err := ParseHexBig("0xff")
	if err != nil || n.Int64() != 255 {
		t.Errorf("ParseHexBig(0xff) = %v, %v", n, err)
	}
}
