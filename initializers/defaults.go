package initializers

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/models"
	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/password"
	"github.com/ZhengyiNLP/sister-expense-tracker/repository"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures/demo.yaml
var demoFixture []byte

type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	Username string       `yaml:"username"`
	Email    string       `yaml:"email"`
	Name     string       `yaml:"name"`
	Password string       `yaml:"password"`
	Records  []seedRecord `yaml:"records"`
}

type seedRecord struct {
	Type     string  `yaml:"type"`
	Amount   float64 `yaml:"amount"`
	Category string  `yaml:"category"`
	Date     string  `yaml:"date"`
	Note     string  `yaml:"note"`
}

// SeedDemoData loads demo users and records on an empty store.
// fixturePath overrides the embedded fixture when set.
func SeedDemoData(ctx context.Context, repos *repository.Repositories, hasher *password.Hasher, fixturePath string, log *slog.Logger) error {
	const op = "initializers.SeedDemoData"

	count, err := repos.Users.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if count > 0 {
		log.Debug("store already has users, skipping demo data")
		return nil
	}

	data := demoFixture
	if fixturePath != "" {
		if data, err = os.ReadFile(fixturePath); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	var fixture seedFile
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return fmt.Errorf("%s: parse fixture: %w", op, err)
	}

	now := time.Now().UTC()
	for _, su := range fixture.Users {
		hash, err := hasher.Hash(su.Password)
		if err != nil {
			return fmt.Errorf("%s: user %s: %w", op, su.Username, err)
		}
		u := &models.User{Username: su.Username, Email: su.Email, Name: su.Name, PasswordHash: hash, CreatedAt: now}
		if err := repos.Users.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("%s: user %s: %w", op, su.Username, err)
		}
		for i, sr := range su.Records {
			date, err := models.ParseDate(sr.Date)
			if err != nil {
				return fmt.Errorf("%s: user %s record %d: %w", op, su.Username, i, err)
			}
			rec := &models.Record{
				UserID:    u.ID,
				Type:      models.RecordType(sr.Type),
				Amount:    sr.Amount,
				Category:  sr.Category,
				Date:      date,
				Note:      sr.Note,
				CreatedAt: now,
			}
			if !rec.Type.Valid() || rec.Amount <= 0 || rec.Category == "" {
				return fmt.Errorf("%s: user %s record %d: invalid record", op, su.Username, i)
			}
			if err := repos.Records.CreateRecord(ctx, rec); err != nil {
				return fmt.Errorf("%s: user %s record %d: %w", op, su.Username, i, err)
			}
		}
		log.Info("demo user created", slog.String("username", u.Username), slog.Int("records", len(su.Records)))
	}
	return nil
}
