package record

import (
	"testing"
	"time"
)

func TestParseValueNullInputs(t *testing.T) {
	for _, raw := range []string{"", "   ", "#N/A", "#DIV/0!", "abc", "₹1,200"} {
		if got := ParseValue(raw); got != nil {
			t.Fatalf("ParseValue(%q) 应返回 nil, 实际 %v", raw, *got)
		}
	}
}

func TestParseValueNumbers(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"12,345.6", 12345.6},
		{"1,00,000", 100000},
		{"42", 42},
		{"-3.5", -3.5},
		{"12.5%", 12.5},
		{" 7 ", 7},
		{".5", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := ParseValue(tt.raw)
			if got == nil {
				t.Fatalf("ParseValue(%q) returned nil", tt.raw)
			}
			if *got != tt.want {
				t.Fatalf("ParseValue(%q) = %v, want %v", tt.raw, *got, tt.want)
			}
		})
	}
}

func TestFromRawDropsRowsWithoutDate(t *testing.T) {
	rows := []map[string]string{
		{"Date": "10/14/2026", "GMV": "1,000", "CR": "#N/A"},
		{"Date": "", "GMV": "5"},
		{"GMV": "9"},
		{"date": "10/13/2026", "GMV": "2"},
	}

	got := FromRawRows(rows, "Date")
	if len(got) != 2 {
		t.Fatalf("期望 2 行, 实际 %d", len(got))
	}
	if got[0].Date != "10/14/2026" || got[1].Date != "10/13/2026" {
		t.Fatalf("行顺序应保持不变: %+v", got)
	}
	if v, ok := got[0].Value("GMV"); !ok || v != 1000 {
		t.Fatalf("GMV 解析错误: %v %v", v, ok)
	}
	if _, ok := got[0].Value("CR"); ok {
		t.Fatal("#N/A 应解析为空值")
	}
	if got[0].Raw["CR"] != "#N/A" {
		t.Fatal("原始单元格应保留")
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2026, time.October, 14, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"10/14/2026", "10/14/26", "2026-10-14", "14-Oct-2026", "Oct 14, 2026", "10/14/2026 0:00:00"} {
		got, ok := ParseDate(raw, time.UTC)
		if !ok {
			t.Fatalf("ParseDate(%q) failed", raw)
		}
		if !SameDay(got, want) {
			t.Fatalf("ParseDate(%q) = %v, want %v", raw, got, want)
		}
	}

	if _, ok := ParseDate("not a date", time.UTC); ok {
		t.Fatal("invalid date should not parse")
	}
}
