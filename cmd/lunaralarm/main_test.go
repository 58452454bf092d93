package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"lunaralarm/internal/app"
	"lunaralarm/internal/dispatch"
	"lunaralarm/internal/lunar"
	"lunaralarm/internal/model"
)

func runConvert(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := convertCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConvertCmd(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"2025-03-28"}, "2025-03-28 → 음력 2025년 2월 29일"},
		{[]string{"--lunar", "2025-01-15"}, "음력 2025년 1월 15일 → 2025-02-12"},
		{[]string{"--lunar", "--leap", "2023-02-15"}, "음력 2023년 윤2월 15일 → 2023-04-05"},
	}
	for _, tt := range tests {
		got, err := runConvert(t, tt.args...)
		if err != nil {
			t.Fatalf("convert %v: %v", tt.args, err)
		}
		if !strings.Contains(got, tt.want) {
			t.Errorf("convert %v = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestConvertCmd_Errors(t *testing.T) {
	for _, args := range [][]string{
		{"12/02/2025"},
		{"--lunar", "2025-02-30"},
		{"--lunar", "2025-x-01"},
		{},
	} {
		if _, err := runConvert(t, args...); err == nil {
			t.Errorf("convert %v succeeded, want error", args)
		}
	}
}

func TestPrintResult(t *testing.T) {
	res := app.Result{
		Today: time.Date(2025, time.January, 13, 0, 0, 0, 0, time.UTC),
		Notifications: []model.Notification{{
			Summary:    "어머니 생신",
			TargetDate: time.Date(2025, time.February, 12, 0, 0, 0, 0, time.UTC),
			Label:      "lunar_30day",
			Lunar:      lunar.Date{Year: 2025, Month: 1, Day: 15},
			Body:       "30일 뒤 (02월 12일)은",
		}},
		Report: dispatch.Report{Sent: 1, Failed: 1, Errors: []error{errors.New("email: 535")}},
	}

	var dry bytes.Buffer
	printResult(&dry, res, true)
	if !strings.Contains(dry.String(), "[lunar_30day] 어머니 생신 → 2025-02-12 (음력 1월 15일)") || !strings.Contains(dry.String(), "30일 뒤") {
		t.Errorf("dry-run output:\n%s", dry.String())
	}
	if strings.Contains(dry.String(), "sent") {
		t.Errorf("dry-run output reports delivery:\n%s", dry.String())
	}

	var live bytes.Buffer
	printResult(&live, res, false)
	if !strings.Contains(live.String(), "sent 1, failed 1") || !strings.Contains(live.String(), "email: 535") {
		t.Errorf("output:\n%s", live.String())
	}
}
