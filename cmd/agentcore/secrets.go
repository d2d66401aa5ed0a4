package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"agentcore/pkg/config"
)

// PasswordEnvVar lets automated environments skip the secrets password prompt.
const passwordEnvVar = "AGENTCORE_PASSWORD"

// unlockSecrets loads the encrypted secrets file into memory when one exists.
// The password comes from AGENTCORE_PASSWORD or an interactive prompt.
func unlockSecrets(projectDir string) error {
	if !config.SecretsFileExists(projectDir) {
		return nil
	}

	password := os.Getenv(passwordEnvVar)
	if password == "" {
		if !term.IsTerminal(syscall.Stdin) {
			return fmt.Errorf("secrets file exists but no password is available: set %s", passwordEnvVar)
		}
		fmt.Print("🔐 Secrets file password: ")
		raw, err := term.ReadPassword(syscall.Stdin)
		fmt.Println() // New line after password input
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = string(raw)
	}

	secrets, err := config.DecryptSecretsFile(projectDir, password)
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)
	config.LogInfo("🔓 Loaded %d credentials from the secrets file", len(secrets))
	return nil
}

// ensureAPIKey verifies credentials exist for the model's provider, prompting
// once when the terminal allows it. Ollama needs no key, so it always passes.
func ensureAPIKey(projectDir, model string) error {
	provider, err := config.GetModelProvider(model)
	if err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}

	if _, keyErr := config.GetAPIKey(provider); keyErr == nil {
		return nil
	}

	envVar := apiKeyEnvVar(provider)
	if !term.IsTerminal(syscall.Stdin) {
		return fmt.Errorf("no API key for provider %s: set %s or store it in the encrypted secrets file", provider, envVar)
	}

	fmt.Printf("🔑 No API key found for provider %s.\n", provider)
	fmt.Printf("Enter %s: ", envVar)
	raw, err := term.ReadPassword(syscall.Stdin)
	fmt.Println() // New line after password input
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}
	key := strings.TrimSpace(string(raw))
	if key == "" {
		return fmt.Errorf("no API key provided")
	}
	if err := config.SetSecret(envVar, key); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}

	return offerEncryptedSave(projectDir)
}

// apiKeyEnvVar maps a provider to the environment variable its key lives in.
func apiKeyEnvVar(provider string) string {
	switch provider {
	case config.ProviderAnthropic:
		return config.EnvAnthropicAPIKey
	case config.ProviderOpenAI:
		return config.EnvOpenAIAPIKey
	case config.ProviderGoogle:
		return config.EnvGoogleAPIKey
	default:
		return ""
	}
}

// offerEncryptedSave asks whether to persist in-memory credentials to the
// encrypted project file. Declining keeps the key for this run only.
func offerEncryptedSave(projectDir string) error {
	fmt.Print("Store credentials encrypted in this project (.agentcore/secrets.json.enc)? [y/N]: ")

	scanner := bufio.NewScanner(os.Stdin)
	var choice string
	if scanner.Scan() {
		choice = strings.ToLower(strings.TrimSpace(scanner.Text()))
	}
	if choice != "y" && choice != "yes" {
		fmt.Println("✅ Keeping the key in memory for this run only")
		return nil
	}

	password, err := promptForPassword()
	if err != nil {
		return fmt.Errorf("failed to get password: %w", err)
	}

	fmt.Println("🔐 Encrypting and saving credentials...")
	if err := config.SaveSecretsToFile(projectDir, password); err != nil {
		return fmt.Errorf("failed to encrypt secrets: %w", err)
	}

	fmt.Println("✅ Credentials saved to .agentcore/secrets.json.enc (file permissions: 0600)")
	return nil
}

// promptForPassword prompts for a password with confirmation.
func promptForPassword() (string, error) {
	maxAttempts := 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Println()
		fmt.Print("Enter a password for the secrets file: ")
		password1, err := term.ReadPassword(syscall.Stdin)
		fmt.Println() // New line after password input
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		fmt.Print("Confirm password: ")
		password2, err := term.ReadPassword(syscall.Stdin)
		fmt.Println() // New line after password input
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		if !bytes.Equal(password1, password2) {
			if attempt < maxAttempts {
				fmt.Println("❌ Passwords do not match. Please try again.")
				continue
			}
			return "", fmt.Errorf("passwords do not match after %d attempts", maxAttempts)
		}

		// Passwords match
		password := string(password1)

		// Clear password bytes from memory
		for i := range password1 {
			password1[i] = 0
		}
		for i := range password2 {
			password2[i] = 0
		}

		fmt.Println()
		fmt.Printf("⚠️  You'll need this password on every start, or set %s for passwordless startup.\n", passwordEnvVar)
		return password, nil
	}

	return "", fmt.Errorf("failed to get matching passwords")
}
