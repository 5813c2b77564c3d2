// Package migrate declares the checkpoint and summary tables and creates
// them with ent's schema migrator.
package migrate

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// textSize makes string columns unbounded text on every dialect.
const textSize = 2147483647

var (
	// CheckpointsColumns holds the columns for the "checkpoints" table.
	CheckpointsColumns = []*schema.Column{
		{Name: "pk", Type: field.TypeInt, Increment: true},
		{Name: "thread_id", Type: field.TypeString},
		{Name: "step", Type: field.TypeInt},
		{Name: "id", Type: field.TypeString},
		{Name: "source", Type: field.TypeString},
		{Name: "owner", Type: field.TypeString, Default: ""},
		{Name: "writes", Type: field.TypeString, Size: textSize},
		{Name: "parents", Type: field.TypeString, Size: textSize},
		{Name: "created_at", Type: field.TypeInt64},
	}
	// CheckpointsTable holds the schema information for the "checkpoints" table.
	CheckpointsTable = &schema.Table{
		Name:       "checkpoints",
		Columns:    CheckpointsColumns,
		PrimaryKey: []*schema.Column{CheckpointsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "checkpoint_thread_id_step",
				Unique:  true,
				Columns: []*schema.Column{CheckpointsColumns[1], CheckpointsColumns[2]},
			},
		},
	}

	// SummariesColumns holds the columns for the "summaries" table.
	SummariesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "user_id", Type: field.TypeString},
		{Name: "thread_id", Type: field.TypeString, Default: ""},
		{Name: "body", Type: field.TypeString, Size: textSize},
		{Name: "created_at", Type: field.TypeInt64},
	}
	// SummariesTable holds the schema information for the "summaries" table.
	SummariesTable = &schema.Table{
		Name:       "summaries",
		Columns:    SummariesColumns,
		PrimaryKey: []*schema.Column{SummariesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "summary_user_id_created_at",
				Columns: []*schema.Column{SummariesColumns[1], SummariesColumns[4]},
			},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		CheckpointsTable,
		SummariesTable,
	}
)

// Create runs the append-only auto-migration for Tables on drv.
func Create(ctx context.Context, drv dialect.Driver, opts ...schema.MigrateOption) error {
	m, err := schema.NewMigrate(drv, opts...)
	if err != nil {
		return fmt.Errorf("ent/migrate: %w", err)
	}
	return m.Create(ctx, Tables...)
}
