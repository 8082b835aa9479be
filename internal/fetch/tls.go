package fetch

import "crypto/tls"

func tlsConfigInsecure() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via Options.SkipTLSVerification
}
