// Package prompt implements the launcher's interactive terminal input:
// password entry with echo disabled, challenge codes, and yes/no decisions
// for interstitial pages.
package prompt

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/Rhine227/ISBoxerEVELauncher/internal/auth/eve"
	"github.com/Rhine227/ISBoxerEVELauncher/internal/vault"
)

// Terminal reads answers from stdin. It implements eve.InputProvider.
type Terminal struct {
	in *bufio.Reader
}

// New creates a terminal prompter.
func New() *Terminal {
	return &Terminal{in: bufio.NewReader(os.Stdin)}
}

// PromptPassword asks for the account password without echoing it. The
// caller owns the returned secret.
func (t *Terminal) PromptPassword(username string) (*vault.SecureBytes, bool) {
	fmt.Printf("Password for %s: ", username)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil || len(raw) == 0 {
		vault.Zero(raw)
		return nil, false
	}
	return vault.NewSecureBytes(raw), true
}

// PromptAuthenticatorCode asks for an authenticator app code.
func (t *Terminal) PromptAuthenticatorCode(username string) (string, bool) {
	return t.readLine(fmt.Sprintf("Authenticator code for %s: ", username))
}

// PromptEmailCode asks for the emailed verification code.
func (t *Terminal) PromptEmailCode(username string) (string, bool) {
	return t.readLine(fmt.Sprintf("Email verification code for %s: ", username))
}

// PromptCharacterName asks which character disambiguates the account.
func (t *Terminal) PromptCharacterName(username string) (string, bool) {
	return t.readLine(fmt.Sprintf("Character name for %s: ", username))
}

// PromptAccept shows a challenge notice and asks for a yes/no decision.
// Declining is the default.
func (t *Terminal) PromptAccept(kind eve.ChallengeKind, body string) bool {
	switch kind {
	case eve.KindNeedsEulaAcceptance:
		fmt.Println("The server requires accepting the EULA before logging in.")
	case eve.KindSecurityWarning:
		fmt.Println("The server presented a security warning page.")
	case eve.KindNeedsEmailVerification:
		fmt.Println("The account's email address must be verified. Complete the verification from your mailbox first.")
	default:
		fmt.Printf("The server presented an unexpected page (%s).\n", kind)
	}
	answer, ok := t.readLine("Continue? [y/N]: ")
	if !ok {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// PromptPassphrase asks for the master passphrase without echoing it.
func (t *Terminal) PromptPassphrase(label string) ([]byte, bool) {
	fmt.Print(label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil || len(raw) == 0 {
		vault.Zero(raw)
		return nil, false
	}
	return raw, true
}

func (t *Terminal) readLine(label string) (string, bool) {
	fmt.Print(label)
	line, err := t.in.ReadString('\n')
	if err != nil {
		return "", false
	}
	line = strings.TrimSpace(line)
	return line, line != ""
}
