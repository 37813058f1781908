package main

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// Prints the bcrypt hash for an API key, for the API_KEY_HASH env var.
func main() {
	if len(os.Args) != 2 {
		log.Fatal("usage: genhash <api-key>")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[1]), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(hash))
}
