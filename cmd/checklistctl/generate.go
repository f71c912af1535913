package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/events"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/repository"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/service"
)

func newGenerateCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the daily generator once",
		Long:  "Instantiates every scheduled checklist due on the given day (default today in the scheduler time zone) and marks overdue checklists. Events are not published.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, log, err := connect()
			if err != nil {
				return err
			}
			defer db.Close()

			loc, err := cfg.Scheduler.Location()
			if err != nil {
				return err
			}
			cal := service.NewCalendar(nil, loc)

			day := cal.Today()
			if date != "" {
				if day, err = domain.ParseDate(date); err != nil {
					return fmt.Errorf("invalid --date %q: %w", date, err)
				}
			}

			tenancy := repository.NewTenancyRepository(db)
			scheduler := service.NewScheduler(db,
				tenancy,
				repository.NewTemplateRepository(db),
				repository.NewChecklistRepository(db),
				events.NewPublisher(nil, log),
				nil, cal, log)

			gen, err := service.NewDailyGenerator(scheduler, cfg.Scheduler.Cron, nil, log)
			if err != nil {
				return err
			}
			res, err := gen.RunNow(cmd.Context(), day)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: created %d, skipped %d, failed %d\n",
				res.Date, res.Created, res.Skipped, res.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to generate (YYYY-MM-DD)")
	return cmd
}
