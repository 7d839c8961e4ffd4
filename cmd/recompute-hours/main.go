// recompute-hours rebuilds each project's recorded-hours accumulator from its
// completed time records. Use after a bulk import or a suspected drift between
// the records and the accumulator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/serviconsa/portal_backend/config"
	"bitbucket.org/serviconsa/portal_backend/models"
	"bitbucket.org/serviconsa/portal_backend/workflow"
)

func main() {
	projectID := flag.Int("project-id", 0, "Optional: recompute only one project. If 0, recomputes all projects.")
	dryRun := flag.Bool("dry-run", false, "Print the recomputed totals without writing them.")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	var projects []models.Project
	query := db.WithContext(ctx).Model(&models.Project{})
	if *projectID != 0 {
		query = query.Where("id = ?", *projectID)
	}
	if err := query.Find(&projects).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to list projects: %v\n", err)
		os.Exit(1)
	}
	if len(projects) == 0 {
		fmt.Fprintln(os.Stderr, "no projects found to recompute")
		return
	}

	for _, project := range projects {
		var records []models.TimeRecord
		if err := db.WithContext(ctx).
			Where("project_id = ? AND fecha_fin IS NOT NULL", project.ID).
			Find(&records).Error; err != nil {
			fmt.Fprintf(os.Stderr, "project %d: failed to list time records: %v\n", project.ID, err)
			continue
		}

		var total float64
		for i := range records {
			hours, ok := workflow.RecordAccrual(&records[i])
			if !ok {
				continue
			}
			total += hours
		}

		if *dryRun {
			fmt.Printf("project %d (%s): stored=%.4f recomputed=%.4f\n", project.ID, project.NPU, project.RecordedHours, total)
			continue
		}

		if err := db.WithContext(ctx).Model(&models.Project{}).
			Where("id = ?", project.ID).
			Update("recorded_hours", total).Error; err != nil {
			fmt.Fprintf(os.Stderr, "project %d: failed to update recorded hours: %v\n", project.ID, err)
			continue
		}
		fmt.Printf("project %d (%s): recorded_hours set to %.4f (%d records)\n", project.ID, project.NPU, total, len(records))
	}
}
