// Package custody composes the password envelope and the machine seal into the two
// operations operators and services use: Setup turns a private key and a password
// into a CustodyToken, and Load turns the token and the password back into the key,
// on the machine that created it only.
package custody
