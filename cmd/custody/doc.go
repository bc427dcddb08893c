// Package main (cmd/custody) is the operator CLI for key custody.
//
// A signing key is stored as a CustodyToken: the key encrypted under a password
// (Web3 Secret Storage, scrypt) and then sealed under a random machine key held in
// the OS credential store. The token can live in ordinary configuration; opening it
// needs both the password and this machine.
//
// Commands:
//
//	setup      - Read a private key or mnemonic and a password, print the token
//	address    - Unlock a token and print its account address (alias: load)
//	sign       - Unlock a token and sign a message (EIP-191, or an X-Flashbots-Signature header)
//	inspect    - Show a token's address and scrypt cost without the password
//	benchmark  - Time setup and load per scrypt cost to pick --cost
//
// Example workflow:
//
//  1. Pick a cost that takes about a second on this machine:
//     custody benchmark --from 16 --to 22
//
//  2. Create the token and append it to the deployment's .env:
//     custody setup --cost 20 --output env://./.env
//
//  3. Unlock it in a deployment script:
//     CUSTODY_PASSWORD=... custody address --source env://./.env
//
// Flags of every command can also be set in a YAML file passed with --config.
//
// Exit status: 1 general failure, 2 invalid input, 3 passwords differ, 4 token
// cannot be opened on this machine, 5 wrong password, 6 setup verification failed.
package main
