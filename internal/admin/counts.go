package admin

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/veldtlabs/bannerlake/pkg/star"
)

// Counts prints the row count of every warehouse table.
func Counts(ctx context.Context, store *star.Store) error {
	counts, err := store.Counts(ctx)
	if err != nil {
		return fmt.Errorf("count tables: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Table", "Rows"})
	for _, c := range counts {
		table.Append([]string{c.Table, strconv.FormatInt(c.Rows, 10)})
	}
	table.Render()
	return nil
}
