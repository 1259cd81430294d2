// receiptctl is the client-side helper for receiptd: it manages ed25519
// caller keys, signs requests and encodes CBOR request bodies.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"receiptd/internal/buildinfo"
	"receiptd/internal/codec"
	"receiptd/internal/tx"
	"receiptd/internal/types"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  receiptctl gen")
	fmt.Fprintln(w, "  receiptctl pub    <sk_b64>")
	fmt.Fprintln(w, "  receiptctl sign   <sk_b64> <method> <path> [body-file]   (prints X-PubKey, X-Sig, X-Nonce)")
	fmt.Fprintln(w, "  receiptctl encode --payer P --payee Q --amount N [--details D] [--out FILE]")
	fmt.Fprintln(w, "  receiptctl version")
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

var errUsage = errors.New("bad usage")

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(os.Stderr)
		return errUsage
	}
	switch args[0] {
	case "gen":
		pk, sk, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, base64.StdEncoding.EncodeToString(pk))
		fmt.Fprintln(out, base64.StdEncoding.EncodeToString(sk))
		return nil

	case "pub":
		if len(args) < 2 {
			usage(os.Stderr)
			return errUsage
		}
		sk, err := decodePrivateKey(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, base64.StdEncoding.EncodeToString(sk.Public().(ed25519.PublicKey)))
		return nil

	case "sign":
		if len(args) < 4 {
			usage(os.Stderr)
			return errUsage
		}
		sk, err := decodePrivateKey(args[1])
		if err != nil {
			return err
		}
		var body []byte
		if len(args) > 4 {
			if body, err = os.ReadFile(args[4]); err != nil {
				return fmt.Errorf("read body: %w", err)
			}
		}
		// the nonce doubles as a timestamp; send the request promptly
		nonce := strconv.FormatInt(time.Now().UnixMilli(), 10)
		sig := ed25519.Sign(sk, tx.SigningMessage(args[2], args[3], nonce, body))
		fmt.Fprintln(out, base64.StdEncoding.EncodeToString(sk.Public().(ed25519.PublicKey)))
		fmt.Fprintln(out, base64.StdEncoding.EncodeToString(sig))
		fmt.Fprintln(out, nonce)
		return nil

	case "encode":
		return encode(args[1:], out)

	case "version", "--version":
		fmt.Fprintln(out, buildinfo.String("receiptctl"))
		return nil

	default:
		usage(os.Stderr)
		return errUsage
	}
}

func encode(args []string, out io.Writer) error {
	var (
		in      tx.Issue
		payer   string
		payee   string
		outPath string
	)
	flagSet := pflag.NewFlagSet("encode", pflag.ContinueOnError)
	flagSet.StringVar(&payer, "payer", "", "payer identity")
	flagSet.StringVar(&payee, "payee", "", "payee identity")
	flagSet.Uint64Var(&in.Amount, "amount", 0, "amount")
	flagSet.StringVar(&in.Details, "details", "", "free-form details")
	flagSet.StringVar(&outPath, "out", "issue.cbor", "output file, - for stdout")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	in.Payer, in.Payee = types.Identity(payer), types.Identity(payee)
	if in.Payer.IsNull() || in.Payee.IsNull() {
		return errors.New("--payer and --payee are required")
	}

	b, err := codec.MarshalCBOR(in)
	if err != nil {
		return err
	}
	if outPath == "-" {
		_, err = out.Write(b)
		return err
	}
	if err := os.WriteFile(outPath, b, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s (%d bytes)\n", outPath, len(b))
	return nil
}

func decodePrivateKey(b64 string) (ed25519.PrivateKey, error) {
	b, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(b) != ed25519.PrivateKeySize {
		return nil, errors.New("bad sk: want base64 of a 64-byte ed25519 private key")
	}
	return ed25519.PrivateKey(b), nil
}
