package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Vorion-Labs/cognigate/pkg/canonicalize"
	"github.com/Vorion-Labs/cognigate/pkg/crypto"
	"github.com/Vorion-Labs/cognigate/pkg/export"
	"github.com/Vorion-Labs/cognigate/pkg/verify"
)

type verifyResult struct {
	Bundle         string `json:"bundle"`
	RecordID       string `json:"record_id"`
	HashValid      bool   `json:"hash_valid"`
	SignatureValid bool   `json:"signature_valid"`
	ProofValid     bool   `json:"proof_valid"`
	Valid          bool   `json:"valid"`
	Error          string `json:"error,omitempty"`
}

// runVerifyCmd checks a proof bundle with no network or storage access: hash
// recomputation, issuer signature, and Merkle inclusion against the witnessed
// root carried in the bundle.
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bundlePath := fs.String("bundle", "", "Path to the proof bundle JSON")
	asJSON := fs.Bool("json", false, "Emit machine-readable JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *bundlePath == "" {
		fmt.Fprintln(stderr, "Usage: cognigate verify --bundle <path> [--json]")
		return 2
	}

	data, err := os.ReadFile(*bundlePath)
	if err != nil {
		fmt.Fprintf(stderr, "read bundle: %v\n", err)
		return 1
	}

	var bundle export.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		fmt.Fprintf(stderr, "parse bundle: %v\n", err)
		return 1
	}

	result := checkBundle(bundle)
	result.Bundle = *bundlePath

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		fmt.Fprintf(stdout, "record:    %s\n", result.RecordID)
		fmt.Fprintf(stdout, "hash:      %s\n", passFail(result.HashValid))
		fmt.Fprintf(stdout, "signature: %s\n", passFail(result.SignatureValid))
		fmt.Fprintf(stdout, "inclusion: %s\n", passFail(result.ProofValid))
		if result.Error != "" {
			fmt.Fprintf(stdout, "error:     %s\n", result.Error)
		}
		if result.Valid {
			fmt.Fprintln(stdout, "VERIFIED")
		} else {
			fmt.Fprintln(stdout, "FAILED")
		}
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func checkBundle(bundle export.Bundle) verifyResult {
	result := verifyResult{RecordID: bundle.Record.ID}

	hash, err := canonicalize.RecordHash(bundle.Record)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.HashValid = hash == bundle.Record.Hash && bundle.Proof.LeafHash == bundle.Record.Hash

	if keyID, ok := strings.CutPrefix(bundle.Record.SignatureType, "ed25519:"); ok {
		if pub, found := bundle.IssuerKeys[keyID]; found {
			valid, verr := crypto.Verify(pub, bundle.Record.Signature, []byte(bundle.Record.Hash))
			result.SignatureValid = verr == nil && valid
		} else {
			result.Error = fmt.Sprintf("bundle carries no public key for %q", keyID)
		}
	} else {
		result.Error = fmt.Sprintf("unsupported signature type %q", bundle.Record.SignatureType)
	}

	result.ProofValid = bundle.Proof.Root == bundle.Anchor.MerkleRoot && verify.CheckProof(bundle.Proof)
	result.Valid = result.HashValid && result.SignatureValid && result.ProofValid
	return result
}

func passFail(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAIL"
}

// runHealthCmd hits the local server's health endpoint.
func runHealthCmd(stdout, stderr io.Writer) int {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost:" + port + "/healthz")
	if err != nil {
		fmt.Fprintf(stderr, "health check failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "unhealthy: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}
