package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/streamrouter/internal/core/db"
	"github.com/solatis/streamrouter/internal/router"
	"github.com/solatis/streamrouter/internal/types"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Manage stored routes",
}

var routesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Store a new route",
	Args:  cobra.NoArgs,
	RunE:  runRoutesAdd,
}

var routesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print stored routes in route file format",
	Args:  cobra.NoArgs,
	RunE:  runRoutesList,
}

var routesRemoveCmd = &cobra.Command{
	Use:   "remove <id|name>",
	Short: "Delete a stored route",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoutesRemove,
}

var routesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Create or update routes from a route file",
	Long: `Create or update routes from a route file. Routes are matched by name.
Every definition is validated before any is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runRoutesImport,
}

func init() {
	rootCmd.AddCommand(routesCmd)
	routesCmd.AddCommand(routesAddCmd, routesListCmd, routesRemoveCmd, routesImportCmd)

	routesAddCmd.Flags().String("name", "", "route name (unique)")
	routesAddCmd.Flags().StringSlice("operations", nil, "operations: INSERT, UPDATE, REMOVE")
	routesAddCmd.Flags().String("condition", "", "condition expression (empty matches every record)")
	routesAddCmd.Flags().String("handler", router.HandlerLog, "handler: log or forward:<sink>")
	routesAddCmd.MarkFlagRequired("name")
	routesAddCmd.MarkFlagRequired("operations")
}

func openRouteStore(cmd *cobra.Command) (*db.RouteStore, func(), error) {
	a, err := newApp(cmd)
	if err != nil {
		return nil, nil, err
	}
	database, queries, err := a.openDatabase()
	if err != nil {
		return nil, nil, err
	}
	if err := db.RequireMigrated(database); err != nil {
		database.Close()
		return nil, nil, err
	}
	return db.NewRouteStore(queries), func() { database.Close() }, nil
}

func runRoutesAdd(cmd *cobra.Command, args []string) error {
	def := types.RouteDefinition{}
	def.Name, _ = cmd.Flags().GetString("name")
	def.Operations, _ = cmd.Flags().GetStringSlice("operations")
	def.Condition, _ = cmd.Flags().GetString("condition")
	def.Handler, _ = cmd.Flags().GetString("handler")
	if err := router.ValidateDefinition(def); err != nil {
		return err
	}

	store, closeDB, err := openRouteStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	created, err := store.Create(def)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), created.RouteID)
	return nil
}

func runRoutesList(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openRouteStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	defs, err := store.List()
	if err != nil {
		return err
	}
	data, err := router.MarshalDefinitions(defs)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runRoutesRemove(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openRouteStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	id, err := types.ParseRouteID(args[0])
	if err != nil {
		def, lookupErr := store.GetByName(args[0])
		if lookupErr != nil {
			return lookupErr
		}
		id = def.RouteID
	}
	if err := store.Delete(id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
	return nil
}

func runRoutesImport(cmd *cobra.Command, args []string) error {
	defs, err := router.LoadDefinitions(args[0])
	if err != nil {
		return err
	}
	var errs []error
	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		if err := router.ValidateDefinition(def); err != nil {
			errs = append(errs, err)
		}
		if seen[def.Name] {
			errs = append(errs, fmt.Errorf("%w: name %q appears twice", types.ErrDuplicateRoute, def.Name))
		}
		seen[def.Name] = true
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	store, closeDB, err := openRouteStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	out := cmd.OutOrStdout()
	for _, def := range defs {
		stored, err := store.Upsert(def)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n", stored.RouteID, stored.Name)
	}
	return nil
}

