// Command genkey generates a random shared secret for AUTH_TOKEN.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

func main() {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		fmt.Fprintf(os.Stderr, "error generating random key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("AUTH_TOKEN (set this in the environment of the station process):")
	fmt.Println(hex.EncodeToString(key))
}
