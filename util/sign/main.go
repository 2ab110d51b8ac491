package main

import (
	"bufio"
	"crypto/ed25519"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	outputStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func main() {
	var keyPath, server string

	cmd := &cobra.Command{
		Use:          "sign [challenge]",
		Short:        "Sign ed25519 login challenges for the editor service",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			privKey, err := loadPrivateKey(keyPath)
			if err != nil {
				return fmt.Errorf("error loading private key: %w", err)
			}

			switch {
			case server != "":
				challenge, err := fetchChallenge(nil, server)
				if err != nil {
					return err
				}
				return printSignature(privKey, challenge)
			case len(args) == 1:
				return printSignature(privKey, args[0])
			default:
				return interactive(privKey)
			}
		},
	}
	cmd.Flags().StringVarP(&keyPath, "key", "k", "privkey.pem", "PEM encoded PKCS#8 ed25519 private key")
	cmd.Flags().StringVarP(&server, "server", "s", "", "fetch the challenge from this editor service URL")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func printSignature(privKey ed25519.PrivateKey, challenge string) error {
	sig, err := signChallenge(privKey, challenge)
	if err != nil {
		return err
	}
	fmt.Println(outputStyle.Render("Authorization: " + sig))
	return nil
}

func interactive(privKey ed25519.PrivateKey) error {
	fmt.Println("Enter challenges one by one. Type 'quit' to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStyle.Render("Enter challenge (base64): "))
		if !scanner.Scan() {
			break
		}

		challenge := strings.TrimSpace(scanner.Text())
		if challenge == "" {
			continue
		}
		if challenge == "quit" {
			break
		}

		if err := printSignature(privKey, challenge); err != nil {
			fmt.Println(errorStyle.Render("Error: " + err.Error()))
		}
	}
	return scanner.Err()
}
