package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/xtxerr/trending/internal/errors"
	"github.com/xtxerr/trending/internal/site"
	"github.com/xtxerr/trending/internal/source"
)

// passphrases remembers SSH key passphrases by key file, so a reloaded
// config can reuse what was entered at startup.
type passphrases struct {
	prompt func(keyFile string) (string, error)
	byKey  map[string]string
}

func newPassphrases(prompt func(string) (string, error)) *passphrases {
	return &passphrases{prompt: prompt, byKey: make(map[string]string)}
}

// resolve fills in the passphrase of every tunneled site whose key is
// encrypted and has none configured. Without interactive, an unknown
// passphrase is an error.
func (p *passphrases) resolve(sites []site.Config, interactive bool) error {
	for i := range sites {
		ssh := &sites[i].SSH
		if !sites[i].NeedsSSH() || ssh.Passphrase != "" {
			continue
		}
		if pw, ok := p.byKey[ssh.KeyFile]; ok {
			ssh.Passphrase = pw
			continue
		}

		encrypted, err := source.KeyNeedsPassphrase(ssh.KeyFile)
		if err != nil {
			return errors.Wrapf(err, "site %s: read key", sites[i].Name)
		}
		if !encrypted {
			continue
		}
		if !interactive {
			return errors.NewValidation(fmt.Sprintf("sites.%s.ssh.key_password", sites[i].Name),
				"key is encrypted and no passphrase is known")
		}

		pw, err := p.prompt(ssh.KeyFile)
		if err != nil {
			return errors.Wrapf(err, "site %s: read passphrase", sites[i].Name)
		}
		p.byKey[ssh.KeyFile] = pw
		ssh.Passphrase = pw
	}
	return nil
}

// promptPassphrase reads a passphrase from the terminal without echo.
func promptPassphrase(keyFile string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.NewValidation("ssh.key_password", "key "+keyFile+" is encrypted and stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "Passphrase for %s: ", keyFile)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
