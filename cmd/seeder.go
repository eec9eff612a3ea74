package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/call"
	userDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/user"
	"github.com/frahmantamala/facilities-maintenance/internal/notification"
	"github.com/frahmantamala/facilities-maintenance/internal/user"
	"github.com/frahmantamala/facilities-maintenance/pkg/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample identities, call types and coordinators for development and testing purposes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd.Context())
	},
}

var (
	seedClear            bool
	seedCoordinatorsFile string
	seedPassword         string
)

// seedSystem acts for the seeder; audit entries record it as the system actor.
var seedSystem = &auth.Principal{ID: 0, Username: "system", Role: auth.RoleAdmin}

type seedCoordinator struct {
	Name      string   `yaml:"name"`
	Email     string   `yaml:"email"`
	Region    string   `yaml:"region"`
	Provinces []string `yaml:"provinces"`
}

type seedFile struct {
	Coordinators []seedCoordinator `yaml:"coordinators"`
}

var defaultSeedCoordinators = []seedCoordinator{
	{Name: "Coastal Desk", Email: "coastal.desk@example.com", Region: string(call.RegionCoastal)},
	{Name: "Western Cape Coordinator", Email: "wc.coordinator@example.com", Region: string(call.RegionCoastal), Provinces: []string{"Western Cape"}},
	{Name: "Inland Desk", Email: "inland.desk@example.com", Region: string(call.RegionInland)},
	{Name: "Gauteng Coordinator", Email: "gp.coordinator@example.com", Region: string(call.RegionInland), Provinces: []string{"Gauteng"}},
}

var seedCallTypes = []struct {
	Name string
	Desc string
}{
	{"plumbing", "Leaks, blockages and water supply"},
	{"electrical", "Power, lighting and wiring faults"},
	{"hvac", "Heating, ventilation and air conditioning"},
	{"structural", "Walls, roofs, floors and doors"},
	{"cleaning", "Spills and hygiene requests"},
}

var seedIdentities = []user.ProvisionDTO{
	{Username: "admin", DisplayName: "System Administrator", Email: "admin@example.com", Role: auth.RoleAdmin},
	{Username: "manager", DisplayName: "Facilities Manager", Email: "manager@example.com", Role: auth.RoleManager},
	{Username: "coordinator", DisplayName: "Regional Coordinator", Email: "coordinator@example.com", Role: auth.RoleCoordinator},
	{Username: "tech.one", DisplayName: "Technician One", Email: "tech.one@example.com", Role: auth.RoleTechnician},
	{Username: "tech.two", DisplayName: "Technician Two", Email: "tech.two@example.com", Role: auth.RoleTechnician},
	{Username: "reporter", DisplayName: "Office Reporter", Email: "reporter@example.com", Role: auth.RoleUser},
}

func runSeed(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	lg := logger.LoggerWrapper()

	app, err := newApp(ctx, appConfig, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer app.Close(context.Background())

	if seedClear {
		if err := clearSeedData(ctx, app.Gorm); err != nil {
			return err
		}
		lg.Info("cleared calls, notification records and coordinators")
	}

	if err := app.Gorm.WithContext(ctx).
		Where(userDatamodel.Department{Name: "Facilities"}).
		FirstOrCreate(&userDatamodel.Department{Name: "Facilities"}).Error; err != nil {
		return fmt.Errorf("failed to seed department: %w", err)
	}

	for _, dto := range seedIdentities {
		dto.Password = seedPassword
		identity, err := app.Users.Provision(ctx, seedSystem, dto)
		switch {
		case err == nil:
			lg.Info("seeded identity", "username", identity.Username, "role", identity.Role)
		case internal.IsErrorType(err, internal.ErrorTypeConflict):
			lg.Info("identity already exists", "username", dto.Username)
		default:
			return fmt.Errorf("failed to seed identity %s: %w", dto.Username, err)
		}
	}

	for _, ct := range seedCallTypes {
		if app.CallTypes.IsValid(ctx, ct.Name) {
			continue
		}
		if _, err := app.CallTypes.Create(ctx, ct.Name, ct.Desc); err != nil {
			return fmt.Errorf("failed to seed call type %s: %w", ct.Name, err)
		}
		lg.Info("seeded call type", "name", ct.Name)
	}

	coordinators := defaultSeedCoordinators
	if seedCoordinatorsFile != "" {
		coordinators, err = loadSeedCoordinators(seedCoordinatorsFile)
		if err != nil {
			return err
		}
	}
	for _, c := range coordinators {
		created, err := app.Coordinators.Create(ctx, seedSystem, notification.CreateCoordinatorDTO{
			Name:      c.Name,
			Email:     c.Email,
			Region:    call.Region(c.Region),
			Provinces: c.Provinces,
		})
		switch {
		case err == nil:
			lg.Info("seeded coordinator", "email", created.Email, "region", created.Region)
		case internal.IsErrorType(err, internal.ErrorTypeConflict):
			lg.Info("coordinator already exists", "email", c.Email)
		default:
			return fmt.Errorf("failed to seed coordinator %s: %w", c.Email, err)
		}
	}

	lg.Info("seeding completed")
	return nil
}

func loadSeedCoordinators(path string) ([]seedCoordinator, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read coordinators file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse coordinators file: %w", err)
	}
	return f.Coordinators, nil
}

// clearSeedData wipes operational tables. Identities and audit entries are
// kept; audit_entries is append-only.
func clearSeedData(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).Exec(`TRUNCATE TABLE
		call_attachments,
		call_comments,
		maintenance_calls,
		call_number_sequences,
		notification_records,
		coordinators
		RESTART IDENTITY`).Error
	if err != nil {
		return fmt.Errorf("failed to clear seed data: %w", err)
	}
	return nil
}

func init() {
	seedCmd.Flags().BoolVar(&seedClear, "clear", false, "truncate calls, notification records and coordinators before seeding")
	seedCmd.Flags().StringVar(&seedCoordinatorsFile, "coordinators", "", "YAML file listing coordinators to seed")
	seedCmd.Flags().StringVar(&seedPassword, "password", "password123", "password for seeded identities")
}
