package model

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestCalculatedLiquidityDataJSONStringFields(t *testing.T) {
	tick := int32(12)
	payload := CalculatedLiquidityData{
		Liquidity:       new(big.Int).Lsh(big.NewInt(1), 100),
		Amount0:         big.NewInt(100),
		Amount1:         big.NewInt(0),
		FinalTickLower:  -200,
		FinalTickUpper:  200,
		CurrentPoolTick: &tick,
		InRange:         true,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if v, ok := decoded["liquidity"].(string); !ok || v != "1267650600228229401496703205376" {
		t.Fatalf("liquidity should be a decimal string, got %v", decoded["liquidity"])
	}
	if v, ok := decoded["amount1"].(string); !ok || v != "0" {
		t.Fatalf("amount1 should be \"0\", got %v", decoded["amount1"])
	}
	if _, ok := decoded["current_price"]; ok {
		t.Fatalf("unset price should be omitted")
	}
}

func TestZapQuoteJSONNilAmounts(t *testing.T) {
	data, err := json.Marshal(ZapQuote{InputSide: SideToken1, PriceImpact: 1.5})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["swap_amount"] != "0" {
		t.Fatalf("nil swap amount should encode as \"0\", got %v", decoded["swap_amount"])
	}
	if decoded["input_side"] != "token1" {
		t.Fatalf("input side mismatch: %v", decoded["input_side"])
	}
	if _, ok := decoded["leftover_token0"]; ok {
		t.Fatalf("nil leftover should be omitted")
	}
}
