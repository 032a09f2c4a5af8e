package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/forest-guardian/vegindex-cli/internal/utils"
)

var (
	input  *bufio.Reader = bufio.NewReader(os.Stdin)
	stdout io.Writer     = color.Output

	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgBlue)
)

// PrintWarning prints message in yellow under a "Warning:" header.
func PrintWarning(message string) {
	warningColor.Fprintln(stdout, "\nWarning:")
	warningColor.Fprintln(stdout, message)
}

func PrintError(message string) {
	errorColor.Fprintf(stdout, "\nError: %s\n", message)
}

func PrintSuccess(message string) {
	successColor.Fprintf(stdout, "\n%s\n", message)
}

// PrintInfo prints message in blue without a trailing newline, as prompts do.
func PrintInfo(message string) {
	infoColor.Fprint(stdout, message)
}

func PrintItem(message string) {
	successColor.Fprintf(stdout, "- %s\n", message)
}

// ReadString prints prompt and returns the next input line, trimmed. It
// returns "" once input is exhausted.
func ReadString(prompt string) string {
	PrintInfo(prompt)
	line, _ := input.ReadString('\n')
	return strings.TrimSpace(line)
}

// ReadStringDefault returns def when the user enters nothing.
func ReadStringDefault(prompt, def string) string {
	if v := ReadString(fmt.Sprintf("%s[%s] ", prompt, def)); v != "" {
		return v
	}
	return def
}

// ReadInt reads a number within [min, max].
func ReadInt(prompt string, min, max int) (int, error) {
	return parseBounded(ReadString(prompt), min, max)
}

// ReadIntDefault is ReadInt returning def on empty input.
func ReadIntDefault(prompt string, def, min, max int) (int, error) {
	line := ReadString(fmt.Sprintf("%s[%d] ", prompt, def))
	if line == "" {
		return def, nil
	}
	return parseBounded(line, min, max)
}

func parseBounded(line string, min, max int) (int, error) {
	value, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", line)
	}
	if value < min || value > max {
		return 0, fmt.Errorf("value must be between %d and %d", min, max)
	}
	return value, nil
}

// ReadDate reads a YYYY-MM-DD date, or "today".
func ReadDate(prompt string) (time.Time, error) {
	line := ReadString(prompt)
	if line == "today" {
		return utils.Day(time.Now()), nil
	}
	date, err := time.Parse("2006-01-02", line)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %s. Please use YYYY-MM-DD", line)
	}
	return date, nil
}

// ReadDateRange reads a start and an end date.
func ReadDateRange() (time.Time, time.Time, error) {
	startDate, err := ReadDate("Enter the start date (YYYY-MM-DD): ")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	endDate, err := ReadDate("Enter the end date (YYYY-MM-DD): ")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if endDate.Before(startDate) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s is before start date %s", endDate.Format("2006-01-02"), startDate.Format("2006-01-02"))
	}
	return startDate, endDate, nil
}

// ReadChoice lists options and returns the index of the chosen one.
func ReadChoice(title string, options []string) (int, error) {
	successColor.Fprintf(stdout, "\n%s\n", title)
	for i, opt := range options {
		successColor.Fprintf(stdout, "%d. %s\n", i+1, opt)
	}
	choice, err := ReadInt("Enter your choice: ", 1, len(options))
	if err != nil {
		return 0, err
	}
	return choice - 1, nil
}

// ReadYesNo returns def on empty input.
func ReadYesNo(prompt string, def bool) bool {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	switch strings.ToLower(ReadString(fmt.Sprintf("%s[%s] ", prompt, hint))) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}
	return def
}

func parseChoice(line string, options int) (int, error) {
	choice, err := strconv.Atoi(line)
	if err != nil || choice < 1 || choice > options {
		return 0, fmt.Errorf("invalid choice %q, please enter a number between 1 and %d", line, options)
	}
	return choice, nil
}
