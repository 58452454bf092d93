package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lunaralarm/internal/lunar"
)

func convertCmd() *cobra.Command {
	var (
		fromLunar bool
		leap      bool
	)

	cmd := &cobra.Command{
		Use:   "convert YYYY-MM-DD",
		Short: "Convert a date between the solar and lunar calendars",
		Example: "  lunaralarm convert 2025-02-12\n" +
			"  lunaralarm convert --lunar 2023-02-15 --leap",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !fromLunar {
				t, err := time.Parse(time.DateOnly, args[0])
				if err != nil {
					return fmt.Errorf("invalid date %q: want YYYY-MM-DD", args[0])
				}
				d, err := lunar.FromSolar(t)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s → 음력 %d년 %s\n", t.Format(time.DateOnly), d.Year, lunar.FormatKorean(d))
				return nil
			}

			y, m, d, err := splitDate(args[0])
			if err != nil {
				return err
			}
			t, ok := lunar.ToSolar(y, m, d, leap, time.UTC)
			if !ok {
				return fmt.Errorf("lunar date %s does not exist", lunar.Date{Year: y, Month: m, Day: d, Leap: leap})
			}
			fmt.Fprintf(out, "음력 %d년 %s → %s\n", y, lunar.FormatKorean(lunar.Date{Month: m, Day: d, Leap: leap}), t.Format(time.DateOnly))
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromLunar, "lunar", false, "Treat the argument as a lunar date")
	cmd.Flags().BoolVar(&leap, "leap", false, "The lunar month is a leap month")
	return cmd
}

func splitDate(s string) (y, m, d int, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return 0, 0, 0, errors.New("want YYYY-MM-DD")
	}
	nums := make([]int, 3)
	for i, p := range parts {
		if nums[i], err = strconv.Atoi(p); err != nil {
			return 0, 0, 0, fmt.Errorf("want YYYY-MM-DD: %w", err)
		}
	}
	return nums[0], nums[1], nums[2], nil
}
