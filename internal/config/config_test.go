package config

import "testing"

func TestParseChainConfig(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "both chains present",
			raw:  `{"ethereum":{"chain_id":1,"rpc_ws":"wss://eth"},"bsc":{"chain_id":56,"rpc_http":"https://bsc"}}`,
		},
		{
			name:    "missing bsc",
			raw:     `{"ethereum":{"chain_id":1,"rpc_ws":"wss://eth"}}`,
			wantErr: true,
		},
		{
			name:    "chain with no endpoints",
			raw:     `{"ethereum":{"chain_id":1},"bsc":{"chain_id":56,"rpc_http":"https://bsc"}}`,
			wantErr: true,
		},
		{
			name:    "empty",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "malformed json",
			raw:     `{"ethereum":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseChainConfig(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseChainConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseAddressList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "json array", raw: `["0xABC", "0xdef"]`, want: []string{"0xabc", "0xdef"}},
		{name: "comma separated", raw: "0xAbC, 0xDEF", want: []string{"0xabc", "0xdef"}},
		{name: "empty", raw: "", want: nil},
		{name: "whitespace entries", raw: " , 0x1 ,", want: []string{"0x1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAddressList(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("parseAddressList(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("entry %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRunsWorker(t *testing.T) {
	all := &Config{Workers: []string{"all"}}
	if !all.RunsWorker("decoder") {
		t.Error("workers=all should enable every worker")
	}

	some := &Config{Workers: []string{"listener", "decoder"}}
	if !some.RunsWorker("decoder") {
		t.Error("decoder should be enabled")
	}
	if some.RunsWorker("merit") {
		t.Error("merit should not be enabled")
	}
}

func TestProfilerRunsMerit(t *testing.T) {
	tests := []struct {
		name    string
		workers []string
		want    bool
	}{
		{"all runs merit standalone", []string{"all"}, false},
		{"profiler alone piggybacks", []string{"profiler"}, true},
		{"profiler and merit split cadence", []string{"profiler", "merit"}, false},
		{"merit alone", []string{"merit"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Workers: tt.workers}
			if got := cfg.ProfilerRunsMerit(); got != tt.want {
				t.Errorf("ProfilerRunsMerit() = %v, want %v", got, tt.want)
			}
		})
	}
}
