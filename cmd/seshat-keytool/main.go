// Command seshat-keytool creates or rotates the passphrase on an
// encrypted history store, without starting the server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/term"

	"seshat-index/directory/encrypted"
)

func main() {
	create := flag.Bool("create", false, "create a new store if one doesn't exist yet")
	changePassphrase := flag.Bool("change-passphrase", false, "rotate the store's passphrase")
	storeDir := flag.String("dir", "", "path to the store directory")
	flag.Parse()

	if *storeDir == "" {
		log.Fatal("missing -dir")
	}
	if *create == *changePassphrase {
		log.Fatal("specify exactly one of -create or -change-passphrase")
	}

	if *create {
		passphrase := readPassphrase("Passphrase: ")
		confirm := readPassphrase("Confirm passphrase: ")
		if passphrase != confirm {
			log.Fatal("passphrases do not match")
		}

		if _, err := encrypted.Open(*storeDir, passphrase); err != nil {
			log.Fatalf("Failed to create store: %v", err)
		}
		fmt.Println("store ready")
		return
	}

	old := readPassphrase("Current passphrase: ")
	next := readPassphrase("New passphrase: ")
	confirm := readPassphrase("Confirm new passphrase: ")
	if next != confirm {
		log.Fatal("new passphrases do not match")
	}

	if err := encrypted.ChangePassphrase(*storeDir, old, next); err != nil {
		log.Fatalf("Failed to change passphrase: %v", err)
	}
	fmt.Println("passphrase changed")
}

func readPassphrase(prompt string) string {
	fmt.Print(prompt)
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		log.Fatalf("Failed to read passphrase: %v", err)
	}
	return string(bytes)
}
