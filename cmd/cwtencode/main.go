// Command cwtencode signs a JSON claim set with a key from a JWKS (or PEM)
// file and prints the resulting CWT as hex, base64 and zlib compressed
// base64.
//
//	cwtencode --jwks keys.jwks --kid issuer-1 \
//	    --private-claim ga4gh_visa_v1=-70001 --structured ga4gh_visa_v1 \
//	    --claims claims.json
//
// Every flag can also be set through the environment with the CWTENCODE_
// prefix, e.g. CWTENCODE_JWKS=keys.jwks.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/boogy/aws-cwt-issuer/pkg/claims"
	"github.com/boogy/aws-cwt-issuer/pkg/codec"
	"github.com/boogy/aws-cwt-issuer/pkg/cose"
	"github.com/boogy/aws-cwt-issuer/pkg/cwt"
	"github.com/boogy/aws-cwt-issuer/pkg/output"
	"github.com/boogy/aws-cwt-issuer/pkg/version"
)

// maxInputSize bounds key and claim files.
const maxInputSize = 1 << 20

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "cwtencode:", err)
		os.Exit(1)
	}
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("cwtencode", pflag.ContinueOnError)
	fs.String("jwks", "", "JWKS or single JWK file holding the signing key")
	fs.String("pem", "", "PEM private key file, used instead of --jwks")
	fs.String("kid", "", "key id to select from the JWKS (default: first key)")
	fs.String("claims", "-", "claims JSON file, inline JSON object, or - for stdin")
	fs.StringSlice("private-claim", nil, "private claim as name=key, repeatable")
	fs.StringSlice("structured", nil, "private claim whose nested names are resolved too, repeatable")
	fs.String("alg", "", "JOSE or COSE algorithm name (default: the key's)")
	fs.String("issuer", "", "iss claim when the claim set has none")
	fs.Duration("expires-in", 0, "set exp to now plus this duration when the claim set has none")
	fs.Bool("iat", false, "set iat to now when the claim set has none")
	fs.Bool("nbf", false, "set nbf to now when the claim set has none")
	fs.Bool("include-kid", false, "put the kid in the unprotected header")
	fs.Bool("tag", false, "wrap the token in the CWT tag (61)")
	fs.Bool("diag", false, "also print the token in CBOR diagnostic notation")
	fs.Bool("inflate", false, "check that the compressed form inflates back to the token")
	fs.Bool("version", false, "print version information and exit")
	return fs
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}

	v := viper.New()
	v.SetEnvPrefix("cwtencode")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	if v.GetBool("version") {
		info := version.Get()
		_, err := fmt.Fprintf(stdout, "cwtencode %s (%s, %s)\n", info.Version, info.Commit, info.Date)
		return err
	}

	reg, err := registryFromFlags(listValue(v, "private-claim"), listValue(v, "structured"))
	if err != nil {
		return err
	}

	key, err := loadKey(v)
	if err != nil {
		return err
	}

	payload, err := loadClaims(v.GetString("claims"), stdin)
	if err != nil {
		return err
	}

	encoder := cwt.NewEncoder(reg, encoderOptions(v)...)
	token, err := encoder.Encode(payload, key)
	if err != nil {
		return err
	}

	enc, err := output.Render(token)
	if err != nil {
		return err
	}

	if v.GetBool("inflate") {
		inflated, err := output.Decompress(enc.CompressedBase64)
		if err != nil {
			return fmt.Errorf("inflating compressed token: %w", err)
		}
		if !bytes.Equal(inflated, token) {
			return errors.New("compressed token does not inflate to the original")
		}
	}

	if err := output.WriteText(stdout, enc); err != nil {
		return err
	}

	if v.GetBool("diag") {
		diag, err := codec.Diagnose(token)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(stdout, "CWT diagnostic: %s\n", diag); err != nil {
			return err
		}
	}
	return nil
}

// listValue reads a repeatable flag. Values from the environment arrive
// whitespace split, so comma separated entries are split here.
func listValue(v *viper.Viper, name string) []string {
	var out []string
	for _, entry := range v.GetStringSlice(name) {
		for _, item := range strings.Split(entry, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// registryFromFlags builds the claim registry from name=key pairs.
func registryFromFlags(pairs, structured []string) (*claims.Registry, error) {
	nested := make(map[string]bool, len(structured))
	for _, name := range structured {
		nested[strings.TrimSpace(name)] = true
	}

	private := make([]claims.PrivateClaim, 0, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --private-claim %q: expected name=key", pair)
		}
		key, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --private-claim %q: %w", pair, err)
		}
		private = append(private, claims.PrivateClaim{Name: name, Key: key, Structured: nested[name]})
		delete(nested, name)
	}
	for name := range nested {
		return nil, fmt.Errorf("--structured %q names no private claim", name)
	}

	return claims.NewRegistry(private...)
}

func loadKey(v *viper.Viper) (*cose.Key, error) {
	var alg cose.Algorithm
	if name := v.GetString("alg"); name != "" {
		var err error
		if alg, err = cose.AlgorithmFromName(name); err != nil {
			return nil, err
		}
	}

	switch {
	case v.GetString("pem") != "":
		data, err := readFile(v.GetString("pem"))
		if err != nil {
			return nil, err
		}
		return cose.ImportPEM(data, alg, v.GetString("kid"))
	case v.GetString("jwks") != "":
		data, err := readFile(v.GetString("jwks"))
		if err != nil {
			return nil, err
		}
		return cose.ImportJWKS(data, v.GetString("kid"))
	}
	return nil, errors.New("one of --jwks or --pem is required")
}

// loadClaims reads the claim set from stdin, an inline object or a file.
// Numbers stay json.Number so integer claims keep their exact value.
func loadClaims(src string, stdin io.Reader) (map[string]any, error) {
	var r io.Reader
	switch {
	case src == "" || src == "-":
		r = stdin
	case strings.HasPrefix(strings.TrimSpace(src), "{"):
		r = strings.NewReader(src)
	default:
		data, err := readFile(src)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}

	dec := json.NewDecoder(io.LimitReader(r, maxInputSize))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding claims: %w", err)
	}
	if payload == nil {
		return nil, errors.New("claims must be a JSON object")
	}
	return payload, nil
}

func encoderOptions(v *viper.Viper) []cwt.Option {
	var opts []cwt.Option
	if name := v.GetString("alg"); name != "" {
		// already validated by loadKey
		alg, _ := cose.AlgorithmFromName(name)
		opts = append(opts, cwt.WithAlgorithm(alg))
	}
	if iss := v.GetString("issuer"); iss != "" {
		opts = append(opts, cwt.WithIssuer(iss))
	}
	if d := v.GetDuration("expires-in"); d > 0 {
		opts = append(opts, cwt.WithExpiresIn(d.Truncate(time.Second)))
	}
	if v.GetBool("iat") {
		opts = append(opts, cwt.WithIssuedAt())
	}
	if v.GetBool("nbf") {
		opts = append(opts, cwt.WithNotBefore())
	}
	if v.GetBool("include-kid") {
		opts = append(opts, cwt.WithKeyID())
	}
	if v.GetBool("tag") {
		opts = append(opts, cwt.WithCWTTag())
	}
	return opts
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxInputSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) > maxInputSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, maxInputSize)
	}
	return data, nil
}
