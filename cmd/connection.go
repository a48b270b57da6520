// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The gatewayd Authors

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/dicio/gatewayd/internal/config"
	"github.com/dicio/gatewayd/internal/transport"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("GATEWAYD_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// resolveEndpoint builds the link endpoint from config, prompting for the
// bridge password when a username is set
func resolveEndpoint(cfg *config.Config) (transport.Endpoint, error) {
	ep := transport.Endpoint{
		Port:          cfg.Serial.Port,
		BaudRate:      cfg.Serial.Baud,
		URL:           cfg.Serial.URL,
		Username:      cfg.Serial.Username,
		Password:      cfg.Serial.Password,
		SkipSSLVerify: cfg.Serial.SkipSSLVerify,
	}

	if ep.URL != "" && ep.Username != "" && ep.Password == "" {
		pw, err := GetPassword()
		if err != nil {
			return ep, err
		}
		ep.Password = pw
	}

	if ep.URL == "" && ep.Port == "" {
		return ep, fmt.Errorf("either --port or --url must be specified")
	}
	return ep, nil
}

// openLink starts a bare transport delivering lines on the returned channel.
// Lines are dropped if the consumer falls more than 256 behind.
func openLink(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*transport.Transport, transport.Endpoint, <-chan string, error) {
	ep, err := resolveEndpoint(cfg)
	if err != nil {
		return nil, ep, nil, err
	}

	lines := make(chan string, 256)
	tr := transport.New(transport.DefaultDialer, transport.WithLogger(logger.Named("transport")))
	tr.OnLine(func(line string) {
		select {
		case lines <- line:
		default:
			logger.Warn("line dropped, consumer too slow")
		}
	})

	if err := tr.Start(ctx, ep); err != nil {
		return nil, ep, nil, err
	}
	return tr, ep, lines, nil
}
