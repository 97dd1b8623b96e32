package models

import (
	"fmt"
	"strconv"
	"strings"
)

// DailyCron builds a five-field cron spec firing every day at hh:mm UTC.
func DailyCron(hh, mm int) string {
	return fmt.Sprintf("%d %d * * *", mm, hh)
}

// ParseDailyCron recognizes specs produced by DailyCron. Returns false for
// anything with wildcards in the minute or hour field or extra constraints.
func ParseDailyCron(expr string) (hh, mm int, ok bool) {
	fields := strings.Fields(expr)
	if len(fields) != 5 || fields[2] != "*" || fields[3] != "*" || fields[4] != "*" {
		return 0, 0, false
	}
	mm, err := strconv.Atoi(fields[0])
	if err != nil || mm < 0 || mm > 59 {
		return 0, 0, false
	}
	hh, err = strconv.Atoi(fields[1])
	if err != nil || hh < 0 || hh > 23 {
		return 0, 0, false
	}
	return hh, mm, true
}

func scheduleEvery(hours int) string {
	return fmt.Sprintf("раз в %d ч.", hours)
}

func scheduleDaily(hh, mm int) string {
	return fmt.Sprintf("ежедневно в %02d:%02d", hh, mm)
}
