// Package main generates the two secrets the server needs before first start:
// the ENCRYPTION_KEY that seals stored credentials and scratch key secrets,
// and the signing secret for session user JWTs. Both are printed as
// environment assignments ready to paste into a local .env file.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
)

func randomString(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		log.Fatal(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func main() {
	// 24 random bytes encode to exactly 32 characters, which the cipher uses
	// as the AES-256 key directly instead of deriving one.
	encryptionKey := randomString(24)
	sessionSecret := randomString(48)

	fmt.Println("==========================================================")
	fmt.Println("Secrets Generated")
	fmt.Println("==========================================================")
	fmt.Printf("ENCRYPTION_KEY=%s\n", encryptionKey)
	fmt.Printf("MLK_AUTH_SESSION_JWT_SECRET=%s\n", sessionSecret)
	fmt.Println("==========================================================")
	fmt.Println("Changing ENCRYPTION_KEY makes every stored credential unreadable.")
}
