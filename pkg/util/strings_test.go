package util

import (
	"reflect"
	"testing"
)

func TestSplitSymbols(t *testing.T) {
	got := SplitSymbols(" aapl, MSFT,,aapl , eur/usd ")
	want := []string{"AAPL", "MSFT", "EUR/USD"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitSymbols = %v, want %v", got, want)
	}
	if len(SplitSymbols("")) != 0 {
		t.Fatalf("expected empty result")
	}
}
