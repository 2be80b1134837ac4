// Command evice-create-tx builds and signs a single transaction from
// command-line arguments and prints it as JSON, for feeding into
// POST /transaction or a test fixture.
package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/evice-network/evice-chain/internal/chain"
	"github.com/evice-network/evice-chain/internal/cryptoutil"
)

func main() {
	if len(os.Args) != 6 {
		fmt.Fprintf(os.Stderr, "usage: %s <private_key_hex> <sender_public_key_hex> <recipient_public_key_hex> <amount> <nonce>\n", os.Args[0])
		os.Exit(1)
	}

	privateKeyHex := os.Args[1]
	senderHex := os.Args[2]
	recipientHex := os.Args[3]

	amount, err := strconv.ParseUint(os.Args[4], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "amount must be a number: %v\n", err)
		os.Exit(1)
	}
	nonce, err := strconv.ParseUint(os.Args[5], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nonce must be a number: %v\n", err)
		os.Exit(1)
	}

	privateKey, err := decodeFixed(privateKeyHex, cryptoutil.PrivateKeySize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid private key hex: %v\n", err)
		os.Exit(1)
	}
	senderPub, err := decodeFixed(senderHex, cryptoutil.PublicKeySize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid sender public key hex: %v\n", err)
		os.Exit(1)
	}
	recipientPub, err := decodeFixed(recipientHex, cryptoutil.PublicKeySize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid recipient public key hex: %v\n", err)
		os.Exit(1)
	}

	kp := cryptoutil.KeyPair{
		PublicKey:  ed25519.PublicKey(senderPub),
		PrivateKey: ed25519.PrivateKey(privateKey),
	}

	tx := chain.Sign(chain.Transaction{
		Sender:    chain.NewAddress(senderPub),
		Recipient: chain.NewAddress(recipientPub),
		Amount:    amount,
		Nonce:     nonce,
	}, kp)

	out, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode transaction: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func decodeFixed(s string, size int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("expected %d bytes, got %d", size, len(b))
	}
	return b, nil
}
