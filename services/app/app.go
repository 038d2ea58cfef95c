package app

import (
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/config"
	"github.com/forbiddencoding/deal-notifier/common/deals"
	"github.com/forbiddencoding/deal-notifier/common/persistence"
	"github.com/forbiddencoding/deal-notifier/services/app/categories"
	"github.com/forbiddencoding/deal-notifier/services/app/watches"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/sonyflake/v2"
)

type App struct {
	config      *config.Config
	persistence persistence.Persistence
	sonyflake   *sonyflake.Sonyflake
	validator   *validator.Validate
	gatherer    prometheus.Gatherer
	// ---
	watchService    watches.Servicer
	categoryService categories.Servicer
}

func New(
	config *config.Config,
	persistence persistence.Persistence,
	source deals.Source,
	validator *validator.Validate,
	gatherer prometheus.Gatherer,
) (*App, error) {
	var st sonyflake.Settings
	if machineID := config.Server.MachineID; machineID > 0 {
		st.MachineID = func() (int, error) { return machineID, nil }
	}
	sf, err := sonyflake.New(st)
	if err != nil {
		return nil, fmt.Errorf("create id generator: %w", err)
	}

	loc, err := config.Digest.Location()
	if err != nil {
		return nil, err
	}

	watchService, err := watches.NewService(persistence, sf, validator)
	if err != nil {
		return nil, err
	}

	categoryService, err := categories.NewService(persistence, source, sf, validator, loc)
	if err != nil {
		return nil, err
	}

	return &App{
		config:          config,
		persistence:     persistence,
		sonyflake:       sf,
		validator:       validator,
		gatherer:        gatherer,
		watchService:    watchService,
		categoryService: categoryService,
	}, nil
}

func (a *App) WatchService() watches.Servicer {
	return a.watchService
}

func (a *App) CategoryService() categories.Servicer {
	return a.categoryService
}

func (a *App) Validator() *validator.Validate {
	return a.validator
}

func (a *App) Gatherer() prometheus.Gatherer {
	return a.gatherer
}
