package credentials

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Capture interactively collects a new set of credentials. It reads from r
// and writes prompts to w so the caller decides which terminal (if any) is
// involved; each field is re-asked until a non-empty value is entered.
func Capture(r io.Reader, w io.Writer) (Credentials, error) {
	scanner := bufio.NewScanner(r)

	apiKey, err := promptField(scanner, w, "Enter your Composer API Key")
	if err != nil {
		return Credentials{}, err
	}
	apiSecret, err := promptField(scanner, w, "Enter your Composer API Secret")
	if err != nil {
		return Credentials{}, err
	}
	accountID, err := promptField(scanner, w, "Enter your Composer Account ID")
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{
		APIKey:    apiKey,
		APISecret: apiSecret,
		AccountID: accountID,
	}, nil
}

func promptField(scanner *bufio.Scanner, w io.Writer, label string) (string, error) {
	for {
		fmt.Fprintf(w, "%s: ", label)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("failed to read input: %w", err)
			}
			return "", fmt.Errorf("input closed before a value was entered")
		}
		value := strings.TrimSpace(scanner.Text())
		if value != "" {
			return value, nil
		}
		fmt.Fprintln(w, "Value cannot be empty.")
	}
}
