package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/config"
	"github.com/ZhengyiNLP/sister-expense-tracker/initializers"
	"github.com/ZhengyiNLP/sister-expense-tracker/models"
	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/password"
	"github.com/ZhengyiNLP/sister-expense-tracker/repository"

	"golang.org/x/term"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (defaults to environment)")
	email := fs.String("email", "", "Email address")
	username := fs.String("user", "", "Username (defaults to the email)")
	name := fs.String("name", "", "Display name")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	dataDir := fs.String("data-dir", "", "Data directory for the file storage driver")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		fmt.Fprintln(stdout, "Usage: adduser -email <email> [-user <username>] [-name <name>] [-password <password>] [-config <path>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: email")
	}
	if _, err := mail.ParseAddress(*email); err != nil {
		return fmt.Errorf("invalid email %q", *email)
	}
	if *username == "" {
		*username = *email
	}

	pw := *passwordFlag
	if pw == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		pw, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}
	if strings.TrimSpace(pw) == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if err := password.Validate(pw); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}

	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	repos, err := initializers.OpenRepositories(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer repos.Close()

	if existing, err := repos.Users.GetUserByUsername(ctx, *username); err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	} else if existing != nil {
		return fmt.Errorf("user %s already exists", *username)
	}
	if existing, err := repos.Users.GetUserByEmail(ctx, *email); err != nil {
		return fmt.Errorf("failed to look up email: %w", err)
	} else if existing != nil {
		return fmt.Errorf("email %s already exists", *email)
	}

	hash, err := password.NewHasher(cfg.Auth.BcryptCost).Hash(pw)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     *username,
		Email:        *email,
		Name:         *name,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repos.Users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("user %s already exists", *username)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %d\n", user.Username, user.ID)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// pipes and tests
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
