package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// RunHashKey prints the bcrypt hash of key for api.api_key_hash. An empty
// key or "-" reads the key from the first line of stdin.
func RunHashKey(key string, cost int) error {
	hash, err := hashKey(os.Stdin, key, cost)
	if err != nil {
		return err
	}
	Printer.Println(hash)
	return nil
}

func hashKey(in io.Reader, key string, cost int) (string, error) {
	if key == "" || key == "-" {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		key = strings.TrimRight(line, "\r\n")
	}
	if key == "" {
		return "", fmt.Errorf("API key must not be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}
