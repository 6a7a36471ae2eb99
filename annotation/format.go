package annotation

import (
	"fmt"
	"strconv"
	"strings"
)

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatDate turns a DICOM DA value (YYYYMMDD) into MM/DD/YYYY. Values that are
// not eight digits are returned unchanged.
func FormatDate(date string) string {
	if len(date) != 8 || !isDigits(date) {
		return date
	}
	return date[4:6] + "/" + date[6:] + "/" + date[:4]
}

// FormatTime turns a DICOM TM value (HHMMSS, optional fraction) into
// H:MM:SS AM|PM. Only hours above 12 switch to PM; hour 12 prints as 0 AM.
// Values without six leading digits are returned unchanged.
func FormatTime(time string) string {
	if len(time) < 6 || !isDigits(time[:6]) {
		return time
	}
	hour, _ := strconv.Atoi(time[:2])
	clock := "AM"
	if hour > 12 {
		clock = "PM"
	}
	return fmt.Sprintf("%d:%s:%s %s", hour%12, time[2:4], time[4:6], clock)
}

// FormatPersonName renders the PN component separator as ", ".
func FormatPersonName(name string) string {
	return strings.ReplaceAll(name, "^", ", ")
}

// PatientInfo is the "birth date, age, sex" line. It is empty when all three are.
func PatientInfo(birthDate, age, sex string) string {
	if birthDate == "" && age == "" && sex == "" {
		return ""
	}
	return FormatDate(birthDate) + ", " + age + ", " + sex
}

// FormatOpacity renders a layer opacity with one decimal.
func FormatOpacity(opacity float64) string {
	return fmt.Sprintf("%.1f", opacity)
}
