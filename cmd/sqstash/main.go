package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/liliang-cn/sqstash"
	"github.com/spf13/cobra"
)

var (
	dbPath     string
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "sqstash",
	Short: "Inspect sqstash databases",
	Long:  `A read-only command-line interface for looking inside sqstash database files.`,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display database information",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		collections, err := db.Collections(ctx, false)
		if err != nil {
			return fmt.Errorf("failed to list collections: %w", err)
		}

		fmt.Printf("Database: %s\n", db.Path())
		fmt.Printf("  ID: %s\n", db.ID())
		fmt.Printf("  Collections: %d\n", len(collections))
		fmt.Printf("  Types: %d\n", len(db.Types()))
		for _, b := range db.BreakingChanges() {
			fmt.Printf("  Breaking change: %v\n", b)
		}
		return nil
	},
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List collections",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		outputJSON, _ := cmd.Flags().GetBool("json")

		ctx := context.Background()
		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		collections, err := db.Collections(ctx, all)
		if err != nil {
			return fmt.Errorf("failed to list collections: %w", err)
		}

		if outputJSON {
			data, _ := json.MarshalIndent(collections, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Collections (%d):\n", len(collections))
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, c := range collections {
			state := ""
			if c.Dropped {
				state = "removed"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
				c.Name, c.Kind, c.KeyType, c.ValueType, c.CreatedAt.Format("2006-01-02 15:04"), state)
		}
		return w.Flush()
	},
}

type typeRow struct {
	ID       int32  `json:"id"`
	Name     string `json:"name"`
	Class    string `json:"class"`
	Resolved bool   `json:"resolved"`
	Broken   string `json:"broken,omitempty"`
}

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the types registered in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		outputJSON, _ := cmd.Flags().GetBool("json")

		ctx := context.Background()
		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		var rows []typeRow
		for _, e := range db.Types() {
			row := typeRow{
				ID:       e.ID,
				Name:     e.Descriptor.CanonicalName(),
				Class:    e.Descriptor.Class.String(),
				Resolved: e.Resolved,
			}
			if e.Broken != nil {
				row.Broken = e.Broken.Error()
			}
			rows = append(rows, row)
		}

		if outputJSON {
			data, _ := json.MarshalIndent(rows, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Types (%d):\n", len(rows))
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, r := range rows {
			resolved := "yes"
			if !r.Resolved {
				resolved = "no"
			}
			fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Class, resolved, r.Broken)
		}
		return w.Flush()
	},
}

var countCmd = &cobra.Command{
	Use:   "count <name>",
	Short: "Count the values in a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		ctx := context.Background()
		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.CollectionCount(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to count %s: %w", name, err)
		}
		fmt.Println(n)
		return nil
	},
}

// openDatabase opens the selected file read-only. No user types are
// supplied, so only the catalog and type registry are readable.
func openDatabase(ctx context.Context) (*sqstash.Database, error) {
	cfg := sqstash.DefaultConfig(dbPath)
	if configPath != "" {
		loaded, err := sqstash.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		if dbPath != "" && rootCmd.PersistentFlags().Changed("db") {
			cfg.Path = dbPath
		}
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path not specified")
	}
	cfg.Mode = "read-only"
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return sqstash.Open(ctx, cfg)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "stash.db", "Database file path")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	collectionsCmd.Flags().Bool("all", false, "Include removed collections")
	collectionsCmd.Flags().Bool("json", false, "Output as JSON")
	typesCmd.Flags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(infoCmd, collectionsCmd, typesCmd, countCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
