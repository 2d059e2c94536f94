package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cernio/cernio/internal/auth"
	"github.com/cernio/cernio/internal/logger"
	postgresstore "github.com/cernio/cernio/internal/store/postgres"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type MigrateCmd struct {
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

func (c *MigrateCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := log.WithContext(context.Background())

	c.PostgresStore.AutoMigrate = false
	pool, err := c.PostgresStore.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgresstore.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Database migrations completed")
	return nil
}

// seedFile is the YAML document loaded by the seed command.
type seedFile struct {
	Operators []struct {
		CompanyName string `yaml:"companyName"`
		FirstName   string `yaml:"firstName"`
		LastName    string `yaml:"lastName"`
		Email       string `yaml:"email"`
		Password    string `yaml:"password"`
	} `yaml:"operators"`
	Customers []struct {
		FirstName string  `yaml:"firstName"`
		LastName  string  `yaml:"lastName"`
		Email     string  `yaml:"email"`
		Password  string  `yaml:"password"`
		Phone     *string `yaml:"phone"`
	} `yaml:"customers"`
}

// SeedCmd registers the operators and customers listed in a YAML file. Like the other
// admin commands it acts on persisted state, so it only runs against PostgreSQL.
type SeedCmd struct {
	File string `help:"YAML file listing operators and customers to register" required:"" type:"existingfile"`

	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	Tokens        TokenFlags         `embed:"" prefix:"jwt-"`
}

func (c *SeedCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := log.WithContext(context.Background())

	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	stores, err := c.PostgresStore.open(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	operators, customers, err := stores.authorities(c.Tokens)
	if err != nil {
		return err
	}

	registrations := make([]auth.Registration, 0, len(seed.Operators)+len(seed.Customers))
	authorities := make([]*auth.Authority, 0, cap(registrations))
	for _, op := range seed.Operators {
		registrations = append(registrations, auth.Registration{
			TenantName: op.CompanyName,
			FirstName:  op.FirstName,
			LastName:   op.LastName,
			Email:      op.Email,
			Password:   op.Password,
		})
		authorities = append(authorities, operators)
	}
	for _, cu := range seed.Customers {
		registrations = append(registrations, auth.Registration{
			FirstName: cu.FirstName,
			LastName:  cu.LastName,
			Email:     cu.Email,
			Password:  cu.Password,
			Phone:     cu.Phone,
		})
		authorities = append(authorities, customers)
	}

	created := 0
	for i, reg := range registrations {
		a := authorities[i]
		result, err := a.Register(ctx, reg)
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			log.Info().Str("email", reg.Email).Str("kind", a.Kind().String()).Msg("Already registered, skipping")
		case err != nil:
			return fmt.Errorf("failed to register %s: %w", reg.Email, err)
		default:
			created++
			log.Info().
				Str("email", reg.Email).
				Str("kind", a.Kind().String()).
				Str("principal_id", result.User.PrincipalID.String()).
				Msg("Registered")
		}
	}

	log.Info().Int("created", created).Int("total", len(registrations)).Msg("Seed completed")
	return nil
}

type PruneSessionsCmd struct {
	Kind string `help:"principal kind to prune (all, operator or marketplace)" default:"all" enum:"all,operator,marketplace"`

	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	Tokens        TokenFlags         `embed:"" prefix:"jwt-"`
}

func (c *PruneSessionsCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := log.WithContext(context.Background())

	stores, err := c.PostgresStore.open(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	operators, customers, err := stores.authorities(c.Tokens)
	if err != nil {
		return err
	}

	targets := []*auth.Authority{operators, customers}
	if c.Kind != "all" {
		targets = []*auth.Authority{authorityFor(c.Kind, operators, customers)}
	}

	for _, a := range targets {
		count, err := a.PruneExpired(ctx)
		if err != nil {
			return err
		}
		log.Info().Str("kind", a.Kind().String()).Int("count", count).Msg("Pruned expired sessions")
	}

	return nil
}

type SetActiveCmd struct {
	PrincipalID string `arg:"" help:"principal ID"`
	Kind        string `help:"principal kind" default:"operator" enum:"operator,marketplace"`
	Active      bool   `help:"activate the principal; --no-active deactivates it and revokes its sessions" default:"true" negatable:""`

	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	Tokens        TokenFlags         `embed:"" prefix:"jwt-"`
}

func (c *SetActiveCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := log.WithContext(context.Background())

	principalID, err := uuid.Parse(c.PrincipalID)
	if err != nil {
		return fmt.Errorf("invalid principal ID: %w", err)
	}

	stores, err := c.PostgresStore.open(ctx)
	if err != nil {
		return err
	}
	defer stores.close()

	operators, customers, err := stores.authorities(c.Tokens)
	if err != nil {
		return err
	}

	a := authorityFor(c.Kind, operators, customers)
	if err := a.SetActive(ctx, principalID, c.Active); err != nil {
		return err
	}

	log.Info().
		Str("principal_id", principalID.String()).
		Str("kind", a.Kind().String()).
		Bool("active", c.Active).
		Msg("Updated principal")
	return nil
}
